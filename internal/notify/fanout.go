// Package notify delivers notifications to connected clients.
package notify

import (
	"context"
	"errors"
)

// Sink is the delivery surface shared by every adapter in this package.
type Sink interface {
	AddToGroup(ctx context.Context, room, conn string) error
	RemoveFromGroup(ctx context.Context, room, conn string) error
	Broadcast(ctx context.Context, room, event string, payload any) error
	BroadcastExcept(ctx context.Context, room, except, event string, payload any) error
	Send(ctx context.Context, conn, event string, payload any) error
}

var (
	_ Sink = (*Hub)(nil)
	_ Sink = (*Pubsub)(nil)
	_ Sink = Fanout(nil)
)

// Fanout delivers every call to all of its sinks. A failing sink does not stop the others.
type Fanout []Sink

func (f Fanout) each(fn func(s Sink) error) error {
	var errs []error
	for _, s := range f {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) AddToGroup(ctx context.Context, room, conn string) error {
	return f.each(func(s Sink) error { return s.AddToGroup(ctx, room, conn) })
}

func (f Fanout) RemoveFromGroup(ctx context.Context, room, conn string) error {
	return f.each(func(s Sink) error { return s.RemoveFromGroup(ctx, room, conn) })
}

func (f Fanout) Broadcast(ctx context.Context, room, event string, payload any) error {
	return f.each(func(s Sink) error { return s.Broadcast(ctx, room, event, payload) })
}

func (f Fanout) BroadcastExcept(ctx context.Context, room, except, event string, payload any) error {
	return f.each(func(s Sink) error { return s.BroadcastExcept(ctx, room, except, event, payload) })
}

func (f Fanout) Send(ctx context.Context, conn, event string, payload any) error {
	return f.each(func(s Sink) error { return s.Send(ctx, conn, event, payload) })
}
