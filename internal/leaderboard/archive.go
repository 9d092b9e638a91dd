package leaderboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/event"
)

const defaultTTL = 24 * time.Hour

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	TTL      time.Duration
}

// Archive keeps final leaderboards in redis so they can still be read after the room has
// been removed from memory.
type Archive struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewArchive(c Config) *Archive {
	a := &Archive{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}

	if a.ttl <= 0 {
		a.ttl = defaultTTL
	}

	if c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
			return a.Save(ctx, e.(domain.EventGameCompleted).Leaderboard)
		})
		c.EventBus.Subscribe(domain.EventNameGameAborted, func(ctx context.Context, e event.Event) error {
			return a.Save(ctx, e.(domain.EventGameAborted).Leaderboard)
		})
	}

	return a
}

// Save overwrites the archived leaderboard of a room.
func (a *Archive) Save(ctx context.Context, l domain.Leaderboard) error {
	b, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("archive: marshal leaderboard: %w", err)
	}

	// TODO: retry on error
	if err := a.redis.Set(ctx, a.key(l.RoomCode), b, a.ttl).Err(); err != nil {
		return fmt.Errorf("archive: save leaderboard: room=%s: %w", l.RoomCode, err)
	}

	return nil
}

// Claim reserves a room code for a new game. It reports false while the code is still held by
// an earlier game. A claim outlives the leaderboard TTL so an archived leaderboard always
// expires before its code can be handed out again.
func (a *Archive) Claim(ctx context.Context, code string) (bool, error) {
	ok, err := a.redis.SetNX(ctx, a.claimKey(code), 1, 2*a.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("archive: claim room code: room=%s: %w", code, err)
	}
	return ok, nil
}

type GetRequest struct {
	RoomCode string
}

// Get returns the archived leaderboard of a room.
func (a *Archive) Get(ctx context.Context, req GetRequest) (*domain.Leaderboard, error) {
	b, err := a.redis.Get(ctx, a.key(req.RoomCode)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NotFound("leaderboard not found: room=%s", req.RoomCode)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get leaderboard: %w", err)
	}

	var l domain.Leaderboard
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("archive: unmarshal leaderboard: %w", err)
	}

	return &l, nil
}

func (a *Archive) key(room string) string {
	return fmt.Sprintf("%s:%s:leaderboard", a.prefix, room)
}

func (a *Archive) claimKey(room string) string {
	return fmt.Sprintf("%s:%s:claimed", a.prefix, room)
}
