package join

import (
	"time"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
)

type Config struct {
	Now func() time.Time
}

// Coordinator validates and applies join requests against a session. The caller must hold
// the session's lock.
type Coordinator struct {
	now func() time.Time
}

func NewCoordinator(c Config) *Coordinator {
	co := &Coordinator{now: c.Now}
	if co.now == nil {
		co.now = time.Now
	}
	return co
}

// Validation is the outcome of checking a join request.
type Validation struct {
	IsReconnection bool
	ExistingPlayer *domain.Player
	IsValid        bool
	ErrorMessage   string
}

// Validate decides whether userID may join the session. New players are only admitted in the
// lobby, known players may reconnect in any non-terminal state.
func Validate(s *domain.Session, userID, connectionID string) Validation {
	v, _ := validate(s, userID, connectionID)
	return v
}

func validate(s *domain.Session, userID, connectionID string) (Validation, errors.Code) {
	switch {
	case userID == "":
		return invalid("user id is required"), errors.CodeInvalidArgument
	case connectionID == "":
		return invalid("connection id is required"), errors.CodeInvalidArgument
	case userID == s.HostID:
		return invalid("host cannot join as a player"), errors.CodeInvalidArgument
	case s.Kicked[userID]:
		return invalid("player was removed from this room"), errors.CodePermissionDenied
	case s.State.Terminal():
		return invalid("game is " + s.State.String()), errors.CodeFailedPrecondition
	}

	if p, ok := s.Player(userID); ok {
		return Validation{
			IsReconnection: true,
			ExistingPlayer: p,
			IsValid:        true,
		}, 0
	}

	if s.State != domain.StateLobby {
		return invalid("game already started"), errors.CodeFailedPrecondition
	}

	return Validation{IsValid: true}, 0
}

func invalid(msg string) Validation {
	return Validation{ErrorMessage: msg}
}

type Request struct {
	UserID       string
	UserName     string
	ConnectionID string
}

type Result struct {
	Player         domain.Player
	IsReconnection bool
	// PreviousConnectionID is the connection a reconnecting player used before, if it was
	// still attached.
	PreviousConnectionID string
}

// Apply validates the request and updates the roster. A reconnection rebinds the existing
// player to the new connection, a first join appends a player with a zero score.
func (c *Coordinator) Apply(s *domain.Session, req Request) (Result, error) {
	v, code := validate(s, req.UserID, req.ConnectionID)
	if !v.IsValid {
		return Result{}, errors.New(code, errors.WithMessagef("join room %s: %s", s.RoomCode, v.ErrorMessage))
	}

	if v.IsReconnection {
		p := v.ExistingPlayer
		prev := p.ConnectionID
		if prev == req.ConnectionID {
			prev = ""
		}

		p.ConnectionID = req.ConnectionID
		p.Connected = true
		if req.UserName != "" {
			p.Name = req.UserName
		}

		return Result{
			Player:               *p,
			IsReconnection:       true,
			PreviousConnectionID: prev,
		}, nil
	}

	p := &domain.Player{
		PlayerID:     req.UserID,
		Name:         req.UserName,
		ConnectionID: req.ConnectionID,
		Connected:    true,
		JoinTime:     c.now(),
	}
	s.AddPlayer(p)

	return Result{Player: *p}, nil
}
