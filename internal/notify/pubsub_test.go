package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizroom/internal/notify"
)

func TestPubsub_Broadcast(t *testing.T) {
	ctx := context.Background()
	p, rc, _ := makePubsub(t)

	require.NoError(t, p.AddToGroup(ctx, "ROOM22", "a"))
	require.NoError(t, p.AddToGroup(ctx, "ROOM22", "b"))
	require.NoError(t, p.AddToGroup(ctx, "ROOM22", "c"))

	subA := subscribe(t, rc, p.Channel("a"))
	subB := subscribe(t, rc, p.Channel("b"))

	require.NoError(t, p.BroadcastExcept(ctx, "ROOM22", "c", "question.new", map[string]any{"index": 0}))

	for _, sub := range []*redis.PubSub{subA, subB} {
		env := receive(t, sub)
		assert.Equal(t, "question.new", env.Event)
		assert.Equal(t, map[string]any{"index": float64(0)}, env.Data)
	}
}

func TestPubsub_Membership(t *testing.T) {
	ctx := context.Background()
	p, _, rs := makePubsub(t)

	require.NoError(t, p.AddToGroup(ctx, "ROOM22", "a"))
	require.NoError(t, p.AddToGroup(ctx, "ROOM22", "b"))
	require.NoError(t, p.RemoveFromGroup(ctx, "ROOM22", "a"))

	members, err := rs.Members("test:room:ROOM22:members")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestPubsub_Send(t *testing.T) {
	ctx := context.Background()
	p, rc, _ := makePubsub(t)

	sub := subscribe(t, rc, p.Channel("a"))
	require.NoError(t, p.Send(ctx, "a", "kicked", map[string]string{"room_code": "ROOM22"}))

	env := receive(t, sub)
	assert.Equal(t, "kicked", env.Event)
	assert.Equal(t, map[string]any{"room_code": "ROOM22"}, env.Data)
}

func TestPubsub_RedisDown(t *testing.T) {
	ctx := context.Background()
	p, _, rs := makePubsub(t)
	rs.Close()

	assert.Error(t, p.AddToGroup(ctx, "ROOM22", "a"))
	assert.Error(t, p.Broadcast(ctx, "ROOM22", "e", nil))
	assert.Error(t, p.Send(ctx, "a", "e", nil))
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	h := notify.NewHub(notify.HubConfig{})
	p, _, rs := makePubsub(t)
	rs.Close()

	f := notify.Fanout{p, h}
	a := h.Register("a")
	require.Error(t, f.AddToGroup(ctx, "ROOM22", "a"))

	err := f.Broadcast(ctx, "ROOM22", "question.new", 1)
	require.Error(t, err)

	// The hub still got it even though redis failed.
	assert.Len(t, drain(a), 1)
	assert.ErrorContains(t, err, "pubsub: members of ROOM22")
}

func makePubsub(t *testing.T) (*notify.Pubsub, redis.UniversalClient, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       []string{rs.Addr()},
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return notify.NewPubsub(notify.PubsubConfig{Redis: rc, Prefix: "test"}), rc, rs
}

func subscribe(t *testing.T, rc redis.UniversalClient, channel string) *redis.PubSub {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub := rc.Subscribe(ctx, channel)
	t.Cleanup(func() { _ = sub.Close() })

	_, err := sub.Receive(ctx)
	require.NoError(t, err, "should be subscribed")
	return sub
}

func receive(t *testing.T, sub *redis.PubSub) notify.Envelope {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env notify.Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	return env
}
