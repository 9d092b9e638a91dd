package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/victornm/quizroom/internal/api"
	"github.com/victornm/quizroom/internal/connection"
	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/flow"
	"github.com/victornm/quizroom/internal/game"
	"github.com/victornm/quizroom/internal/join"
	"github.com/victornm/quizroom/internal/notify"
	"github.com/victornm/quizroom/internal/quiz"
	"github.com/victornm/quizroom/internal/roomcode"
	"github.com/victornm/quizroom/internal/score"
	"github.com/victornm/quizroom/internal/session"
	"github.com/victornm/quizroom/internal/telemetry"
)

func TestHTTP_Rooms(t *testing.T) {
	e, _ := makeAPI(t)

	w := do(t, e, http.MethodPost, "/v1/rooms", `{"game_id":"capitals"}`, map[string]string{"X-User-ID": "host", "X-User-Name": "Hank"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		RoomCode      string `json:"room_code"`
		QuestionCount int    `json:"question_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.RoomCode, 6)
	assert.Equal(t, 1, created.QuestionCount)

	w = do(t, e, http.MethodGet, "/v1/rooms/"+strings.ToLower(created.RoomCode), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var room api.RoomView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Equal(t, "lobby", room.State)
	assert.Equal(t, "host", room.HostID)
	assert.False(t, room.HostConnected)

	w = do(t, e, http.MethodGet, "/v1/rooms/"+created.RoomCode+"/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var l game.LeaderboardView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
	assert.Equal(t, created.RoomCode, l.RoomCode)
	assert.Empty(t, l.Entries)

	w = do(t, e, http.MethodGet, "/v1/rooms/"+created.RoomCode+"/qr", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestHTTP_Errors(t *testing.T) {
	tests := map[string]struct {
		method   string
		path     string
		body     string
		wantCode int
	}{
		"unknown room": {
			method: http.MethodGet, path: "/v1/rooms/ZZZZZZ", wantCode: http.StatusNotFound,
		},
		"unknown room leaderboard": {
			method: http.MethodGet, path: "/v1/rooms/ZZZZZZ/leaderboard", wantCode: http.StatusNotFound,
		},
		"unknown room qr": {
			method: http.MethodGet, path: "/v1/rooms/ZZZZZZ/qr", wantCode: http.StatusNotFound,
		},
		"malformed room code": {
			method: http.MethodGet, path: "/v1/rooms/not-a-code", wantCode: http.StatusBadRequest,
		},
		"malformed room code leaderboard": {
			method: http.MethodGet, path: "/v1/rooms/ABC/leaderboard", wantCode: http.StatusBadRequest,
		},
		"malformed room code qr": {
			method: http.MethodGet, path: "/v1/rooms/OOOOOO/qr", wantCode: http.StatusBadRequest,
		},
		"unknown game": {
			method: http.MethodPost, path: "/v1/rooms", body: `{"game_id":"nope","host_id":"h"}`, wantCode: http.StatusNotFound,
		},
		"missing host": {
			method: http.MethodPost, path: "/v1/rooms", body: `{"game_id":"capitals"}`, wantCode: http.StatusBadRequest,
		},
		"invalid body": {
			method: http.MethodPost, path: "/v1/rooms", body: `{`, wantCode: http.StatusBadRequest,
		},
		"websocket without identity": {
			method: http.MethodGet, path: "/v1/ws", wantCode: http.StatusUnauthorized,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e, _ := makeAPI(t)

			w := do(t, e, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestHTTP_Healthz(t *testing.T) {
	e, _ := makeAPI(t)

	w := do(t, e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebsocket_Game(t *testing.T) {
	e, _ := makeAPI(t)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	host := dial(t, srv, "host")
	host.send(t, api.Inbound{Type: "create", GameID: "capitals"})
	created := host.expect(t, domain.NotifyRoomCreated)
	code := created["room_code"].(string)

	alice := dial(t, srv, "alice")
	alice.send(t, api.Inbound{Type: "join", RoomCode: strings.ToLower(code)})
	lobby := alice.expect(t, domain.NotifyLobbyState)
	assert.Equal(t, "alice", lobby["player_id"])
	host.expect(t, domain.NotifyPlayerJoined)

	alice.send(t, api.Inbound{Type: "start"})
	failed := alice.expect(t, domain.NotifyError)
	assert.Equal(t, float64(codes.PermissionDenied), failed["code"])

	host.send(t, api.Inbound{Type: "start"})
	q := alice.expect(t, domain.NotifyNewQuestion)
	assert.Equal(t, "q1", q["question_id"])

	alice.send(t, api.Inbound{Type: "submit", QuestionID: "q1", Selection: []string{"paris"}})
	closed := host.expect(t, domain.NotifyQuestionClosed)
	assert.Equal(t, flow.ReasonAllAnswered, closed["reason"])

	host.send(t, api.Inbound{Type: "advance"})
	done := alice.expect(t, domain.NotifyGameCompleted)
	board := done["leaderboard"].(map[string]any)
	assert.Equal(t, true, board["final"])

	alice.send(t, api.Inbound{Type: "dance"})
	assert.Equal(t, float64(codes.InvalidArgument), alice.expect(t, domain.NotifyError)["code"])
}

func TestWebsocket_DisconnectIsReported(t *testing.T) {
	e, _ := makeAPI(t)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	host := dial(t, srv, "host")
	host.send(t, api.Inbound{Type: "create", GameID: "capitals"})
	code := host.expect(t, domain.NotifyRoomCreated)["room_code"].(string)

	alice := dial(t, srv, "alice")
	alice.send(t, api.Inbound{Type: "join", RoomCode: code})
	alice.expect(t, domain.NotifyLobbyState)
	host.expect(t, domain.NotifyPlayerJoined)

	require.NoError(t, alice.conn.Close())
	left := host.expect(t, domain.NotifyPlayerDisconnected)
	assert.Equal(t, "alice", left["player_id"])
}

func TestGRPC_RoomService(t *testing.T) {
	_, m := makeAPI(t)
	ctx := context.Background()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(telemetry.GRPCServerInterceptor())
	api.New(api.Config{GRPC: s, Manager: m, Hub: notify.NewHub(notify.HubConfig{})})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	c := api.NewRoomServiceClient(cc)

	created, err := c.CreateRoom(ctx, &api.CreateRoomRequest{GameID: "capitals", HostID: "host"})
	require.NoError(t, err)
	assert.Equal(t, "Capitals", created.Title)

	room, err := c.GetRoom(ctx, &api.GetRoomRequest{RoomCode: created.RoomCode})
	require.NoError(t, err)
	assert.Equal(t, "lobby", room.State)

	list, err := c.ListRooms(ctx, &api.ListRoomsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, created.RoomCode, list.Rooms[0].RoomCode)

	l, err := c.GetLeaderboard(ctx, &api.GetLeaderboardRequest{RoomCode: created.RoomCode})
	require.NoError(t, err)
	assert.Equal(t, created.RoomCode, l.RoomCode)

	_, err = c.AbortRoom(ctx, &api.AbortRoomRequest{RoomCode: created.RoomCode})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.AbortRoom(ctx, &api.AbortRoomRequest{RoomCode: created.RoomCode, Reason: "maintenance"})
	require.NoError(t, err)

	_, err = c.AbortRoom(ctx, &api.AbortRoomRequest{RoomCode: created.RoomCode, Reason: "maintenance"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.GetRoom(ctx, &api.GetRoomRequest{RoomCode: "ZZZZZZ"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.GetRoom(ctx, &api.GetRoomRequest{RoomCode: "Z"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func makeAPI(t *testing.T) (*gin.Engine, *game.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := notify.NewHub(notify.HubConfig{})
	m := game.NewManager(game.Config{
		Store:    session.NewStore(session.Config{Codes: roomcode.NewGenerator(roomcode.Config{})}),
		Registry: connection.NewRegistry(),
		Flow:     flow.NewController(flow.Config{Score: score.NewEngine(score.Config{})}),
		Join:     join.NewCoordinator(join.Config{}),
		Provider: quiz.NewStatic([]quiz.GameConfig{{
			ID:    "capitals",
			Title: "Capitals",
			Questions: []quiz.QuestionConfig{{
				ID:        "q1",
				Text:      "Capital of France?",
				TimeLimit: time.Minute,
				Options: []quiz.OptionConfig{
					{ID: "paris", Text: "Paris", Correct: true},
					{ID: "rome", Text: "Rome"},
				},
			}},
		}}),
		Sink: hub,
	})
	t.Cleanup(m.Stop)

	e := gin.New()
	api.New(api.Config{HTTP: e, Manager: m, Hub: hub})
	return e, m
}

func do(t *testing.T, e *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

type wsClient struct {
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, user string) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?user_id=" + user + "&user_name=" + user
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, msg api.Inbound) {
	t.Helper()
	require.NoError(t, c.conn.WriteJSON(msg))
}

// expect reads frames until one carries event and returns its data.
func (c *wsClient) expect(t *testing.T, event string) map[string]any {
	t.Helper()

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		require.NoError(t, c.conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env.Data
		}
	}
}
