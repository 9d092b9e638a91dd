package game

import (
	"context"
	"log/slog"
	"sync"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/telemetry"
)

// Sink delivers notifications to clients. Delivery is best effort, the manager does not
// wait for acknowledgements.
type Sink interface {
	AddToGroup(ctx context.Context, room, conn string) error
	RemoveFromGroup(ctx context.Context, room, conn string) error
	Broadcast(ctx context.Context, room, event string, payload any) error
	BroadcastExcept(ctx context.Context, room, except, event string, payload any) error
	Send(ctx context.Context, conn, event string, payload any) error
}

// plan collects the outbound work of one operation while the room's lock is held.
type plan struct {
	room   string
	notes  []domain.Notification
	events []event.Event
}

func newPlan(room string) *plan {
	return &plan{room: room}
}

func (p *plan) broadcast(name string, payload any) {
	p.notes = append(p.notes, domain.Notification{Kind: domain.KindBroadcast, RoomCode: p.room, Event: name, Payload: payload})
}

func (p *plan) broadcastExcept(conn, name string, payload any) {
	p.notes = append(p.notes, domain.Notification{Kind: domain.KindBroadcastExcept, RoomCode: p.room, ConnectionID: conn, Event: name, Payload: payload})
}

func (p *plan) send(conn, name string, payload any) {
	p.notes = append(p.notes, domain.Notification{Kind: domain.KindSend, RoomCode: p.room, ConnectionID: conn, Event: name, Payload: payload})
}

func (p *plan) groupAdd(conn string) {
	p.notes = append(p.notes, domain.Notification{Kind: domain.KindGroupAdd, RoomCode: p.room, ConnectionID: conn})
}

func (p *plan) groupRemove(conn string) {
	p.notes = append(p.notes, domain.Notification{Kind: domain.KindGroupRemove, RoomCode: p.room, ConnectionID: conn})
}

func (p *plan) publish(e event.Event) {
	p.events = append(p.events, e)
}

func (p *plan) empty() bool {
	return len(p.notes) == 0 && len(p.events) == 0
}

// outbox keeps the plans of a room in lock order. Plans are pushed while holding the room's
// lock and flushed after it is released; a single flusher at a time drains the queue, so
// deliveries of one room never overtake each other.
type outbox struct {
	mu       sync.Mutex
	pending  []delivery
	draining bool
}

type delivery struct {
	ctx context.Context
	p   *plan
}

func (o *outbox) push(ctx context.Context, p *plan) {
	if p.empty() {
		return
	}

	o.mu.Lock()
	o.pending = append(o.pending, delivery{ctx: context.WithoutCancel(ctx), p: p})
	o.mu.Unlock()
}

func (m *Manager) flush(o *outbox) {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return
	}
	o.draining = true

	for len(o.pending) > 0 {
		batch := o.pending
		o.pending = nil
		o.mu.Unlock()

		for _, d := range batch {
			m.deliver(d.ctx, d.p)
		}

		o.mu.Lock()
	}

	o.draining = false
	o.mu.Unlock()
}

func (m *Manager) deliver(ctx context.Context, p *plan) {
	for _, n := range p.notes {
		var err error
		switch n.Kind {
		case domain.KindBroadcast:
			err = m.sink.Broadcast(ctx, n.RoomCode, n.Event, n.Payload)
		case domain.KindBroadcastExcept:
			err = m.sink.BroadcastExcept(ctx, n.RoomCode, n.ConnectionID, n.Event, n.Payload)
		case domain.KindSend:
			err = m.sink.Send(ctx, n.ConnectionID, n.Event, n.Payload)
		case domain.KindGroupAdd:
			err = m.sink.AddToGroup(ctx, n.RoomCode, n.ConnectionID)
		case domain.KindGroupRemove:
			err = m.sink.RemoveFromGroup(ctx, n.RoomCode, n.ConnectionID)
		}

		if err != nil {
			telemetry.NotificationsFailed.Inc()
			slog.WarnContext(ctx, "game: deliver notification failed",
				"room", n.RoomCode,
				"event", n.Event,
				"connection", n.ConnectionID,
				"error", err,
			)
		}
	}

	if m.eb == nil {
		return
	}
	for _, e := range p.events {
		m.eb.Publish(ctx, e)
	}
}
