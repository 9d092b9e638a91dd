package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Inbound is a message sent by a client over its websocket.
type Inbound struct {
	Type       string   `json:"type"`
	RoomCode   string   `json:"room_code,omitempty"`
	GameID     string   `json:"game_id,omitempty"`
	QuestionID string   `json:"question_id,omitempty"`
	Selection  []string `json:"selection,omitempty"`
	PlayerID   string   `json:"player_id,omitempty"`
}

type identity struct {
	userID   string
	userName string
}

func (a *API) serveWS(c *gin.Context) {
	id := identity{
		userID:   c.GetHeader(headerUserID),
		userName: c.GetHeader(headerUserName),
	}
	if id.userID == "" {
		id.userID = c.Query("user_id")
	}
	if id.userName == "" {
		id.userName = c.Query("user_name")
	}
	if id.userID == "" {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing user identity")))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	client := a.hub.Register(connID)
	slog.InfoContext(c.Request.Context(), "api: websocket connected", "connection", connID, "user", id.userID)

	go client.WritePump(conn)
	client.ReadPump(conn, func(msg []byte) {
		a.handleMessage(context.Background(), connID, id, msg)
	})

	ctx := context.Background()
	if err := a.m.Disconnect(ctx, connID); err != nil {
		slog.ErrorContext(ctx, "api: disconnect failed", "connection", connID, "error", err)
	}
	a.hub.Unregister(client)
}

func (a *API) handleMessage(ctx context.Context, connID string, id identity, raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.sendError(ctx, connID, errors.InvalidArgument("invalid message: %v", err))
		return
	}

	if err := a.dispatch(ctx, connID, id, msg); err != nil {
		a.sendError(ctx, connID, err)
	}
}

func (a *API) dispatch(ctx context.Context, connID string, id identity, msg Inbound) error {
	switch msg.Type {
	case "create":
		_, err := a.m.CreateRoom(ctx, game.CreateRoomRequest{
			GameID:       msg.GameID,
			HostID:       id.userID,
			HostName:     id.userName,
			ConnectionID: connID,
		})
		return err
	case "join":
		_, err := a.m.Join(ctx, game.JoinRequest{
			RoomCode:     strings.ToUpper(msg.RoomCode),
			UserID:       id.userID,
			UserName:     id.userName,
			ConnectionID: connID,
		})
		return err
	case "start":
		return a.m.Start(ctx, connID)
	case "submit":
		_, err := a.m.SubmitAnswer(ctx, game.SubmitAnswerRequest{
			ConnectionID: connID,
			QuestionID:   msg.QuestionID,
			Selection:    msg.Selection,
		})
		return err
	case "advance":
		return a.m.Advance(ctx, connID)
	case "end":
		return a.m.End(ctx, connID)
	case "abort":
		return a.m.Abort(ctx, connID)
	case "kick":
		return a.m.Kick(ctx, connID, msg.PlayerID)
	case "leave":
		return a.m.Leave(ctx, connID)
	default:
		return errors.InvalidArgument("unknown message type: %q", msg.Type)
	}
}

func (a *API) sendError(ctx context.Context, connID string, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(ctx, "api: handle message failed", "connection", connID, "error", err)
	}

	if err := a.hub.Send(ctx, connID, domain.NotifyError, game.ErrorPayload{
		Code:    uint32(e.Code),
		Message: e.Message,
	}); err != nil {
		slog.WarnContext(ctx, "api: send error failed", "connection", connID, "error", err)
	}
}
