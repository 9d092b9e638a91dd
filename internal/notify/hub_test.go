package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizroom/internal/notify"
)

func TestHub_Broadcast(t *testing.T) {
	ctx := context.Background()
	h := notify.NewHub(notify.HubConfig{})

	a := h.Register("a")
	b := h.Register("b")
	c := h.Register("c")

	require.NoError(t, h.AddToGroup(ctx, "ROOM22", "a"))
	require.NoError(t, h.AddToGroup(ctx, "ROOM22", "b"))
	require.NoError(t, h.AddToGroup(ctx, "OTHER2", "c"))

	require.NoError(t, h.Broadcast(ctx, "ROOM22", "question.new", 1))
	require.NoError(t, h.BroadcastExcept(ctx, "ROOM22", "a", "player.joined", 2))

	assert.Equal(t, []notify.Envelope{{Event: "question.new", Data: 1}}, drain(a))
	assert.Equal(t, []notify.Envelope{{Event: "question.new", Data: 1}, {Event: "player.joined", Data: 2}}, drain(b))
	assert.Empty(t, drain(c))

	require.NoError(t, h.RemoveFromGroup(ctx, "ROOM22", "b"))
	require.NoError(t, h.Broadcast(ctx, "ROOM22", "game.ended", 3))
	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))
}

func TestHub_Send(t *testing.T) {
	ctx := context.Background()
	h := notify.NewHub(notify.HubConfig{SendBuffer: 1})

	a := h.Register("a")
	require.NoError(t, h.Send(ctx, "a", "lobby.state", "x"))
	assert.Error(t, h.Send(ctx, "a", "lobby.state", "y"), "a full buffer should be reported")
	assert.Equal(t, []notify.Envelope{{Event: "lobby.state", Data: "x"}}, drain(a))

	assert.NoError(t, h.Send(ctx, "gone", "lobby.state", "x"))
}

func TestHub_SlowClientDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	h := notify.NewHub(notify.HubConfig{SendBuffer: 1})

	slow := h.Register("slow")
	fast := h.Register("fast")
	require.NoError(t, h.AddToGroup(ctx, "ROOM22", "slow"))
	require.NoError(t, h.AddToGroup(ctx, "ROOM22", "fast"))

	require.NoError(t, h.Broadcast(ctx, "ROOM22", "e1", nil))
	assert.Len(t, drain(fast), 1)

	assert.Error(t, h.Broadcast(ctx, "ROOM22", "e2", nil))
	assert.Len(t, drain(fast), 1)
	assert.Len(t, drain(slow), 1)
}

func TestHub_Unregister(t *testing.T) {
	ctx := context.Background()
	h := notify.NewHub(notify.HubConfig{})

	a := h.Register("a")
	require.NoError(t, h.AddToGroup(ctx, "ROOM22", "a"))
	h.Unregister(a)

	_, ok := <-a.Messages()
	assert.False(t, ok, "messages should be closed")
	assert.Equal(t, 0, h.Len())
	assert.NoError(t, h.Broadcast(ctx, "ROOM22", "e", nil))

	// Unregistering a replaced client leaves the new one alone.
	old := h.Register("b")
	cur := h.Register("b")
	h.Unregister(old)
	assert.Equal(t, 1, h.Len())
	require.NoError(t, h.Send(ctx, "b", "e", nil))
	assert.Len(t, drain(cur), 1)
}

func drain(c *notify.Client) []notify.Envelope {
	var out []notify.Envelope
	for {
		select {
		case env, ok := <-c.Messages():
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}
