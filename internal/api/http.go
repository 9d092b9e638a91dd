package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/game"
)

const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
	qrSize         = 320
)

type (
	CreateRoomBody struct {
		GameID   string `json:"game_id"`
		HostID   string `json:"host_id"`
		HostName string `json:"host_name"`
	}

	RoomView struct {
		RoomCode      string            `json:"room_code"`
		GameID        string            `json:"game_id"`
		Title         string            `json:"title"`
		State         string            `json:"state"`
		HostID        string            `json:"host_id"`
		HostConnected bool              `json:"host_connected"`
		QuestionIndex int               `json:"question_index"`
		QuestionCount int               `json:"question_count"`
		Players       []game.PlayerView `json:"players"`
	}
)

func (a *API) registerHTTP(e *gin.Engine) {
	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := e.Group("/v1")
	v1.POST("/rooms", a.createRoom)
	v1.GET("/rooms/:code", a.getRoom)
	v1.GET("/rooms/:code/leaderboard", a.getLeaderboard)
	v1.GET("/rooms/:code/qr", a.getQR)
	v1.GET("/ws", a.serveWS)
}

func (a *API) createRoom(c *gin.Context) {
	var body CreateRoomBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, errors.InvalidArgument("invalid body: %v", err))
		return
	}

	if body.HostID == "" {
		body.HostID = c.GetHeader(headerUserID)
	}
	if body.HostName == "" {
		body.HostName = c.GetHeader(headerUserName)
	}

	resp, err := a.m.CreateRoom(c.Request.Context(), game.CreateRoomRequest{
		GameID:   body.GameID,
		HostID:   body.HostID,
		HostName: body.HostName,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room_code":      resp.RoomCode,
		"title":          resp.Title,
		"question_count": resp.QuestionCount,
	})
}

func (a *API) getRoom(c *gin.Context) {
	s, err := a.m.Room(c.Request.Context(), strings.ToUpper(c.Param("code")))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, roomView(s))
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.m.Leaderboard(c.Request.Context(), strings.ToUpper(c.Param("code")))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, game.LeaderboardToView(*l))
}

func (a *API) getQR(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	if _, err := a.m.Room(c.Request.Context(), code); err != nil {
		abort(c, err)
		return
	}

	png, err := qrcode.Encode(a.joinURL(c.Request, code), qrcode.Medium, qrSize)
	if err != nil {
		abort(c, errors.Internal(fmt.Errorf("api: encode qr: %w", err)))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) joinURL(r *http.Request, code string) string {
	base := strings.TrimSuffix(a.publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + code
}

func roomView(s *domain.Session) RoomView {
	v := RoomView{
		RoomCode:      s.RoomCode,
		GameID:        s.GameID,
		Title:         s.Title,
		State:         s.State.String(),
		HostID:        s.HostID,
		HostConnected: s.HostConnected,
		QuestionIndex: s.QuestionIndex,
		QuestionCount: len(s.Questions),
		Players:       make([]game.PlayerView, 0, len(s.Players)),
	}
	for _, p := range s.Players {
		v.Players = append(v.Players, game.PlayerView{
			PlayerID:  p.PlayerID,
			Name:      p.Name,
			Connected: p.Connected,
			Score:     p.Score,
		})
	}
	return v
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
