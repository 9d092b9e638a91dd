package leaderboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/leaderboard"
)

func TestArchive_SaveGet(t *testing.T) {
	a, _ := makeArchive(t)

	l := domain.Leaderboard{
		RoomCode: "ROOM22",
		Final:    true,
		Entries: []domain.LeaderboardEntry{
			{Rank: 1, PlayerID: "p1", Name: "Ann", Score: 1000, Progress: "1/1"},
		},
	}
	require.NoError(t, a.Save(context.Background(), l))

	got, err := a.Get(context.Background(), leaderboard.GetRequest{RoomCode: "ROOM22"})
	require.NoError(t, err)
	assert.Equal(t, &l, got)
}

func TestArchive_NotFound(t *testing.T) {
	a, _ := makeArchive(t)

	_, err := a.Get(context.Background(), leaderboard.GetRequest{RoomCode: "NOPE22"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestArchive_Expires(t *testing.T) {
	a, rs := makeArchive(t, withTTL(time.Minute))

	require.NoError(t, a.Save(context.Background(), domain.Leaderboard{RoomCode: "ROOM22"}))
	rs.FastForward(2 * time.Minute)

	_, err := a.Get(context.Background(), leaderboard.GetRequest{RoomCode: "ROOM22"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestArchive_SavesCompletedGames(t *testing.T) {
	eb := event.NewBus()
	a, _ := makeArchive(t, withEventBus(eb))

	eb.Publish(context.Background(), domain.EventGameCompleted{
		RoomCode: "ROOM22",
		Leaderboard: domain.Leaderboard{
			RoomCode: "ROOM22",
			Final:    true,
			Entries:  []domain.LeaderboardEntry{{Rank: 1, PlayerID: "p1"}},
		},
	})
	eb.Stop()

	got, err := a.Get(context.Background(), leaderboard.GetRequest{RoomCode: "ROOM22"})
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)
}

func TestArchive_SavesAbortedGames(t *testing.T) {
	eb := event.NewBus()
	a, _ := makeArchive(t, withEventBus(eb))

	eb.Publish(context.Background(), domain.EventGameAborted{
		RoomCode: "ROOM22",
		Reason:   "host_left",
		Leaderboard: domain.Leaderboard{
			RoomCode: "ROOM22",
			Entries:  []domain.LeaderboardEntry{{Rank: 1, PlayerID: "p1"}, {Rank: 2, PlayerID: "p2"}},
		},
	})
	eb.Stop()

	got, err := a.Get(context.Background(), leaderboard.GetRequest{RoomCode: "ROOM22"})
	require.NoError(t, err)
	assert.False(t, got.Final)
	assert.Len(t, got.Entries, 2)
}

func TestArchive_Claim(t *testing.T) {
	a, rs := makeArchive(t, withTTL(time.Minute))
	ctx := context.Background()

	ok, err := a.Claim(ctx, "ROOM22")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Claim(ctx, "ROOM22")
	require.NoError(t, err)
	assert.False(t, ok, "code is held by the earlier game")

	ok, err = a.Claim(ctx, "ROOM33")
	require.NoError(t, err)
	assert.True(t, ok)

	// The claim outlives the leaderboard.
	require.NoError(t, a.Save(ctx, domain.Leaderboard{RoomCode: "ROOM22"}))
	rs.FastForward(90 * time.Second)
	_, err = a.Get(ctx, leaderboard.GetRequest{RoomCode: "ROOM22"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	ok, err = a.Claim(ctx, "ROOM22")
	require.NoError(t, err)
	assert.False(t, ok)

	rs.FastForward(time.Minute)
	ok, err = a.Claim(ctx, "ROOM22")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArchive_ClaimRedisDown(t *testing.T) {
	a, rs := makeArchive(t)
	rs.Close()

	_, err := a.Claim(context.Background(), "ROOM22")
	assert.Error(t, err)
}

func makeArchive(t *testing.T, opts ...options) (*leaderboard.Archive, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		Redis:  rc,
		Prefix: "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewArchive(c), rs
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withTTL(d time.Duration) options {
	return func(c *leaderboard.Config) {
		c.TTL = d
	}
}
