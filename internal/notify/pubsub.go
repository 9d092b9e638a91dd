package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrent = 100

type PubsubConfig struct {
	Redis  redis.UniversalClient
	Prefix string
	// MaxConcurrent bounds the publishes in flight for one broadcast.
	MaxConcurrent int
}

// Pubsub mirrors notifications to redis so gateways in other processes can relay them. Room
// membership is kept in a set per room and every frame is published to the channel of the
// target connection.
type Pubsub struct {
	redis  redis.UniversalClient
	prefix string
	limit  int
}

func NewPubsub(c PubsubConfig) *Pubsub {
	p := &Pubsub{
		redis:  c.Redis,
		prefix: c.Prefix,
		limit:  c.MaxConcurrent,
	}

	if p.limit <= 0 {
		p.limit = defaultMaxConcurrent
	}

	return p
}

// Channel returns the channel frames for conn are published to.
func (p *Pubsub) Channel(conn string) string {
	return fmt.Sprintf("%s:conn:%s", p.prefix, conn)
}

func (p *Pubsub) members(room string) string {
	return fmt.Sprintf("%s:room:%s:members", p.prefix, room)
}

func (p *Pubsub) AddToGroup(ctx context.Context, room, conn string) error {
	if err := p.redis.SAdd(ctx, p.members(room), conn).Err(); err != nil {
		return fmt.Errorf("pubsub: add %s to %s: %w", conn, room, err)
	}
	return nil
}

func (p *Pubsub) RemoveFromGroup(ctx context.Context, room, conn string) error {
	if err := p.redis.SRem(ctx, p.members(room), conn).Err(); err != nil {
		return fmt.Errorf("pubsub: remove %s from %s: %w", conn, room, err)
	}
	return nil
}

func (p *Pubsub) Broadcast(ctx context.Context, room, event string, payload any) error {
	return p.BroadcastExcept(ctx, room, "", event, payload)
}

func (p *Pubsub) BroadcastExcept(ctx context.Context, room, except, event string, payload any) error {
	conns, err := p.redis.SMembers(ctx, p.members(room)).Result()
	if err != nil {
		return fmt.Errorf("pubsub: members of %s: %w", room, err)
	}

	b, err := marshal(event, payload)
	if err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(p.limit)

	for _, conn := range conns {
		if conn == except {
			continue
		}
		eg.Go(func() error {
			return p.redis.Publish(ctx, p.Channel(conn), b).Err()
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("pubsub: broadcast %s to %s: %w", event, room, err)
	}
	return nil
}

func (p *Pubsub) Send(ctx context.Context, conn, event string, payload any) error {
	b, err := marshal(event, payload)
	if err != nil {
		return err
	}

	if err := p.redis.Publish(ctx, p.Channel(conn), b).Err(); err != nil {
		return fmt.Errorf("pubsub: send %s to %s: %w", event, conn, err)
	}
	return nil
}

func marshal(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("pubsub: marshal %s: %w", event, err)
	}
	return b, nil
}
