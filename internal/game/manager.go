package game

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/victornm/quizroom/internal/connection"
	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/flow"
	"github.com/victornm/quizroom/internal/join"
	"github.com/victornm/quizroom/internal/leaderboard"
	"github.com/victornm/quizroom/internal/session"
	"github.com/victornm/quizroom/internal/telemetry"
)

const (
	defaultHostGracePeriod = 30 * time.Second
	defaultRetention       = 10 * time.Minute
	defaultTimeLimit       = 20 * time.Second
	defaultPoints          = 1000
)

// Reasons a game ends without completing.
const (
	ReasonHostAborted      = "host_aborted"
	ReasonHostLeft         = "host_left"
	ReasonHostDisconnected = "host_disconnected"
	ReasonHostAbsent       = "host_absent"
)

const claimAttempts = 8

// Provider gives read access to game definitions.
type Provider interface {
	GetGame(ctx context.Context, gameID string) (*domain.Game, error)
}

// Archive returns leaderboards of rooms that are no longer in memory. Claim reserves a room
// code in the archive and reports false when the code still belongs to an archived game.
type Archive interface {
	Get(ctx context.Context, req leaderboard.GetRequest) (*domain.Leaderboard, error)
	Claim(ctx context.Context, code string) (bool, error)
}

type Config struct {
	Store    *session.Store
	Registry *connection.Registry
	Flow     *flow.Controller
	Join     *join.Coordinator
	Provider Provider
	Sink     Sink
	EventBus *event.Bus
	Archive  Archive

	// HostGracePeriod is how long a room survives its host being disconnected.
	HostGracePeriod time.Duration
	// Retention is how long a finished room stays readable in memory.
	Retention time.Duration
	// DefaultTimeLimit and DefaultPoints apply to questions that do not set them.
	DefaultTimeLimit time.Duration
	DefaultPoints    int64

	AfterFunc AfterFunc
	Now       func() time.Time
}

// Manager is the entry point for every host and player action. Each operation runs under the
// lock of the one room it targets and delivers its notifications after releasing it.
type Manager struct {
	store    *session.Store
	registry *connection.Registry
	flow     *flow.Controller
	join     *join.Coordinator
	provider Provider
	sink     Sink
	eb       *event.Bus
	archive  Archive

	hostGrace        time.Duration
	retention        time.Duration
	defaultTimeLimit time.Duration
	defaultPoints    int64

	after AfterFunc
	now   func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomRuntime
}

func NewManager(c Config) *Manager {
	m := &Manager{
		store:            c.Store,
		registry:         c.Registry,
		flow:             c.Flow,
		join:             c.Join,
		provider:         c.Provider,
		sink:             c.Sink,
		eb:               c.EventBus,
		archive:          c.Archive,
		hostGrace:        c.HostGracePeriod,
		retention:        c.Retention,
		defaultTimeLimit: c.DefaultTimeLimit,
		defaultPoints:    c.DefaultPoints,
		after:            c.AfterFunc,
		now:              c.Now,
		rooms:            make(map[string]*roomRuntime),
	}

	if m.hostGrace <= 0 {
		m.hostGrace = defaultHostGracePeriod
	}
	if m.retention <= 0 {
		m.retention = defaultRetention
	}
	if m.defaultTimeLimit <= 0 {
		m.defaultTimeLimit = defaultTimeLimit
	}
	if m.defaultPoints <= 0 {
		m.defaultPoints = defaultPoints
	}
	if m.after == nil {
		m.after = realAfterFunc
	}
	if m.now == nil {
		m.now = time.Now
	}

	return m
}

// withRoom runs fn under the room's lock, queues the plan it built and delivers the queue
// once the lock is released.
func (m *Manager) withRoom(ctx context.Context, code string, fn func(s *domain.Session, p *plan) error) error {
	var rt *roomRuntime

	err := m.store.WithLock(code, func(s *domain.Session) error {
		p := newPlan(code)
		if err := fn(s, p); err != nil {
			return err
		}

		rt = m.runtime(code)
		rt.outbox.push(ctx, p)
		return nil
	})

	if rt != nil {
		m.flush(&rt.outbox)
	}

	return err
}

type CreateRoomRequest struct {
	GameID   string
	HostID   string
	HostName string
	// ConnectionID optionally binds the host's connection right away.
	ConnectionID string
}

type CreateRoomResponse struct {
	RoomCode      string
	Title         string
	QuestionCount int
}

// CreateRoom snapshots a game's questions into a new room in the lobby state.
func (m *Manager) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreateRoomResponse, error) {
	if req.GameID == "" || req.HostID == "" {
		return nil, errors.InvalidArgument("create room: game id and host id are required")
	}

	g, err := m.provider.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	code, err := m.createSession(ctx, req, g)
	if err != nil {
		return nil, err
	}

	err = m.withRoom(ctx, code, func(s *domain.Session, p *plan) error {
		if req.ConnectionID == "" {
			m.awaitHost(s)
			return nil
		}

		if _, err := m.connectHost(s, p, req.ConnectionID, req.HostName); err != nil {
			return err
		}
		p.send(req.ConnectionID, domain.NotifyRoomCreated, RoomCreated{
			RoomCode:      code,
			GameID:        s.GameID,
			Title:         s.Title,
			QuestionCount: len(s.Questions),
		})
		return nil
	})
	if err != nil {
		m.dropRuntime(code)
		_ = m.store.Remove(code)
		return nil, err
	}

	telemetry.RoomsActive.Inc()
	slog.InfoContext(ctx, "game: room created", "room", code, "game", g.GameID, "host", req.HostID)

	return &CreateRoomResponse{
		RoomCode:      code,
		Title:         g.Title,
		QuestionCount: len(g.Questions),
	}, nil
}

// createSession inserts the room and claims its code in the archive, so a code is not handed
// out again while the leaderboard of an earlier game still lives under it.
func (m *Manager) createSession(ctx context.Context, req CreateRoomRequest, g *domain.Game) (string, error) {
	for range claimAttempts {
		code, err := m.store.Create(session.CreateRequest{
			GameID:    g.GameID,
			Title:     g.Title,
			HostID:    req.HostID,
			HostName:  req.HostName,
			Questions: m.snapshot(g.Questions),
		})
		if err != nil {
			return "", err
		}

		if m.archive == nil {
			return code, nil
		}

		ok, err := m.archive.Claim(ctx, code)
		if err != nil {
			slog.WarnContext(ctx, "game: claim room code failed", "room", code, "error", err)
			return code, nil
		}
		if ok {
			return code, nil
		}

		_ = m.store.Remove(code)
	}

	return "", errors.New(errors.CodeResourceExhausted,
		errors.WithMessagef("create room: no free room code after %d attempts", claimAttempts))
}

func (m *Manager) snapshot(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		q.Options = slices.Clone(q.Options)
		q.CorrectOptionIDs = slices.Clone(q.CorrectOptionIDs)
		if q.TimeLimit <= 0 {
			q.TimeLimit = m.defaultTimeLimit
		}
		if q.Points <= 0 {
			q.Points = m.defaultPoints
		}
		out = append(out, q)
	}
	return out
}

type JoinRequest struct {
	RoomCode     string
	UserID       string
	UserName     string
	ConnectionID string
}

type JoinResponse struct {
	RoomCode       string
	IsHost         bool
	IsReconnection bool
	State          domain.State
}

// Join attaches a connection to a room. The room's host is recognized by its user ID and
// reattached as host; anyone else joins or reconnects as a player.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	if req.RoomCode == "" || req.UserID == "" || req.ConnectionID == "" {
		return nil, errors.InvalidArgument("join: room code, user id and connection id are required")
	}
	if err := m.checkCode(req.RoomCode); err != nil {
		return nil, err
	}

	var resp JoinResponse
	err := m.withRoom(ctx, req.RoomCode, func(s *domain.Session, p *plan) error {
		resp.RoomCode = s.RoomCode

		if req.UserID == s.HostID {
			rejoined, err := m.connectHost(s, p, req.ConnectionID, req.UserName)
			if err != nil {
				return err
			}
			resp.IsHost = true
			resp.IsReconnection = rejoined
			resp.State = s.State
			return nil
		}

		res, err := m.joinPlayer(s, req)
		if err != nil {
			return err
		}

		if res.PreviousConnectionID != "" {
			m.registry.Unbind(res.PreviousConnectionID)
			p.groupRemove(res.PreviousConnectionID)
		}
		p.groupAdd(req.ConnectionID)
		p.send(req.ConnectionID, domain.NotifyLobbyState, m.lobbyState(s, req.UserID, false))
		p.broadcastExcept(req.ConnectionID, domain.NotifyPlayerJoined, PlayerJoined{
			Player:      playerView(&res.Player),
			Reconnected: res.IsReconnection,
			PlayerCount: len(s.Players),
		})

		resp.IsReconnection = res.IsReconnection
		resp.State = s.State
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

func (m *Manager) joinPlayer(s *domain.Session, req JoinRequest) (join.Result, error) {
	prev, hadPrev := m.registry.Lookup(req.ConnectionID)

	if err := m.registry.Bind(domain.ConnectionInfo{
		ConnectionID: req.ConnectionID,
		RoomCode:     s.RoomCode,
		UserID:       req.UserID,
		UserName:     req.UserName,
	}); err != nil {
		return join.Result{}, err
	}

	res, err := m.join.Apply(s, join.Request{
		UserID:       req.UserID,
		UserName:     req.UserName,
		ConnectionID: req.ConnectionID,
	})
	if err != nil {
		if hadPrev {
			_ = m.registry.Bind(prev)
		} else {
			m.registry.Unbind(req.ConnectionID)
		}
		return join.Result{}, err
	}

	return res, nil
}

// connectHost attaches conn as the room's host and reports whether the host came back after
// a disconnect.
func (m *Manager) connectHost(s *domain.Session, p *plan, conn, name string) (bool, error) {
	if s.State.Terminal() {
		return false, errors.InvalidTransition("join room %s: game is %s", s.RoomCode, s.State)
	}

	if err := m.registry.Bind(domain.ConnectionInfo{
		ConnectionID: conn,
		RoomCode:     s.RoomCode,
		UserID:       s.HostID,
		UserName:     name,
		IsHost:       true,
	}); err != nil {
		return false, err
	}

	if prev := s.HostConnectionID; prev != "" && prev != conn {
		m.registry.Unbind(prev)
		p.groupRemove(prev)
	}

	rejoined := s.HostDisconnectSeq > 0 && !s.HostConnected
	s.HostConnectionID = conn
	s.HostConnected = true
	if name != "" {
		s.HostName = name
	}
	m.runtime(s.RoomCode).cancel(timerHostGrace)

	p.groupAdd(conn)
	p.send(conn, domain.NotifyLobbyState, m.lobbyState(s, "", true))
	if rejoined {
		p.broadcastExcept(conn, domain.NotifyPlayerJoined, PlayerJoined{
			Player:       PlayerView{PlayerID: s.HostID, Name: s.HostName, Connected: true},
			PlayerCount:  len(s.Players),
			Reconnected:  true,
			HostRejoined: true,
		})
	}
	return rejoined, nil
}

func (m *Manager) lobbyState(s *domain.Session, playerID string, isHost bool) LobbyState {
	ls := LobbyState{
		RoomCode:      s.RoomCode,
		Title:         s.Title,
		State:         s.State.String(),
		IsHost:        isHost,
		PlayerID:      playerID,
		QuestionIndex: s.QuestionIndex,
		QuestionCount: len(s.Questions),
		Players:       playerViews(s.Players),
	}

	if q, ok := s.CurrentQuestion(); ok && s.Window.Open {
		remaining := q.TimeLimit - m.now().Sub(s.Window.OpenTime)
		v := questionView(q, s.QuestionIndex, len(s.Questions), remaining)
		_, v.Answered = s.Answers[q.QuestionID][playerID]
		ls.Question = &v
	}

	return ls
}

// Disconnect handles a dropped connection. A player keeps its roster entry and answers, a
// host gets a grace period to come back before the room is aborted.
func (m *Manager) Disconnect(ctx context.Context, connectionID string) error {
	info, ok := m.registry.Unbind(connectionID)
	if !ok {
		return nil
	}

	err := m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		p.groupRemove(connectionID)

		if info.IsHost {
			if s.HostConnectionID != connectionID {
				return nil
			}
			m.disconnectHost(s, p)
			return nil
		}

		pl, ok := s.Player(info.UserID)
		if !ok || pl.ConnectionID != connectionID {
			return nil
		}
		pl.Connected = false
		pl.ConnectionID = ""
		p.broadcast(domain.NotifyPlayerDisconnected, PlayerDisconnected{PlayerID: pl.PlayerID, Name: pl.Name})
		return nil
	})
	if errors.Is(err, errors.CodeNotFound) {
		return nil
	}
	return err
}

func (m *Manager) disconnectHost(s *domain.Session, p *plan) {
	s.HostConnected = false
	s.HostConnectionID = ""
	s.HostDisconnectSeq++
	p.broadcast(domain.NotifyPlayerDisconnected, PlayerDisconnected{PlayerID: s.HostID, Name: s.HostName, IsHost: true})

	if s.State.Terminal() {
		return
	}
	m.awaitHost(s)
}

// awaitHost gives the host the grace period to (re)connect before the room is aborted.
func (m *Manager) awaitHost(s *domain.Session) {
	code, seq := s.RoomCode, s.HostDisconnectSeq
	m.runtime(code).schedule(timerHostGrace, m.after, m.hostGrace, func() {
		m.onHostGraceExpired(code, seq)
	})
}

func (m *Manager) onHostGraceExpired(code string, seq uint64) {
	ctx := context.Background()

	err := m.withRoom(ctx, code, func(s *domain.Session, p *plan) error {
		if s.HostConnected || s.HostDisconnectSeq != seq || s.State.Terminal() {
			return nil
		}
		if seq == 0 {
			return m.abortLocked(s, p, ReasonHostAbsent)
		}
		return m.abortLocked(s, p, ReasonHostDisconnected)
	})
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		slog.ErrorContext(ctx, "game: abort after host grace failed", "room", code, "error", err)
	}
}

// Leave handles a voluntary exit. A player leaving the lobby is removed from the roster, a
// player leaving a started game is kept like a disconnected one, and a host leaving aborts
// the room.
func (m *Manager) Leave(ctx context.Context, connectionID string) error {
	info, ok := m.registry.Lookup(connectionID)
	if !ok {
		return errors.NotFound("leave: connection not found: %s", connectionID)
	}

	if info.IsHost {
		return m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
			if s.HostConnectionID != connectionID {
				return errors.PermissionDenied("leave: connection is not the room's host")
			}
			m.registry.Unbind(connectionID)
			p.groupRemove(connectionID)
			s.HostConnected = false
			s.HostConnectionID = ""
			if s.State.Terminal() {
				return nil
			}
			return m.abortLocked(s, p, ReasonHostLeft)
		})
	}

	return m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		m.registry.Unbind(connectionID)
		p.groupRemove(connectionID)

		pl, ok := s.Player(info.UserID)
		if !ok || pl.ConnectionID != connectionID {
			return nil
		}

		if s.State == domain.StateLobby {
			s.RemovePlayer(pl.PlayerID)
		} else {
			pl.Connected = false
			pl.ConnectionID = ""
		}

		p.broadcast(domain.NotifyPlayerLeft, PlayerLeft{
			PlayerID:    pl.PlayerID,
			Name:        pl.Name,
			Reason:      "left",
			PlayerCount: len(s.Players),
		})
		return nil
	})
}

// host resolves a connection that must belong to a room's host.
func (m *Manager) host(connectionID string) (domain.ConnectionInfo, error) {
	info, ok := m.registry.Lookup(connectionID)
	if !ok {
		return info, errors.NotFound("connection not found: %s", connectionID)
	}
	if !info.IsHost {
		return info, errors.PermissionDenied("only the host can do this")
	}
	return info, nil
}

func (m *Manager) checkHost(s *domain.Session, connectionID string) error {
	if s.HostConnectionID != connectionID {
		return errors.PermissionDenied("connection is no longer the host of room %s", s.RoomCode)
	}
	return nil
}

// Start opens the first question.
func (m *Manager) Start(ctx context.Context, connectionID string) error {
	info, err := m.host(connectionID)
	if err != nil {
		return err
	}

	return m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		if err := m.checkHost(s, connectionID); err != nil {
			return err
		}

		o, err := m.flow.Start(s)
		if err != nil {
			return err
		}

		slog.InfoContext(ctx, "game: started", "room", s.RoomCode, "players", len(s.Players))
		m.opened(s, p, o)
		return nil
	})
}

func (m *Manager) opened(s *domain.Session, p *plan, o flow.Opened) {
	p.broadcast(domain.NotifyNewQuestion, questionView(o.Question, o.Index, o.Count, o.Question.TimeLimit))

	code, seq := s.RoomCode, o.Seq
	m.runtime(code).schedule(timerWindow, m.after, o.Question.TimeLimit, func() {
		m.onWindowTimeout(code, seq)
	})
}

func (m *Manager) onWindowTimeout(code string, seq uint64) {
	ctx := context.Background()

	err := m.withRoom(ctx, code, func(s *domain.Session, p *plan) error {
		closed, ok := m.flow.CloseWindow(s, seq, flow.ReasonTimeout)
		if ok {
			m.closed(s, p, closed)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		slog.ErrorContext(ctx, "game: close window on timeout failed", "room", code, "error", err)
	}
}

func (m *Manager) closed(s *domain.Session, p *plan, c flow.CloseResult) {
	m.runtime(s.RoomCode).cancel(timerWindow)
	telemetry.WindowsClosed.WithLabelValues(c.Reason).Inc()

	p.broadcast(domain.NotifyQuestionClosed, QuestionClosed{
		Index:            c.Index,
		QuestionID:       c.QuestionID,
		CorrectOptionIDs: c.CorrectOptionIDs,
		Reason:           c.Reason,
		Results:          answerResults(c.Submissions),
		Leaderboard:      LeaderboardToView(c.Leaderboard),
	})
	p.publish(domain.EventQuestionClosed{
		RoomCode:    s.RoomCode,
		QuestionID:  c.QuestionID,
		Reason:      c.Reason,
		Submissions: c.Submissions,
	})
}

type SubmitAnswerRequest struct {
	ConnectionID string
	QuestionID   string
	Selection    []string
}

type SubmitAnswerResponse struct {
	QuestionID string
	Answered   int
	Expected   int
	// WindowClosed is set when this answer was the last one missing.
	WindowClosed bool
}

// SubmitAnswer records a player's answer for the open question.
func (m *Manager) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if len(req.Selection) == 0 || req.QuestionID == "" {
		telemetry.Answers.WithLabelValues("rejected").Inc()
		return nil, errors.InvalidArgument("submit answer: question id and selection are required")
	}

	info, ok := m.registry.Lookup(req.ConnectionID)
	if !ok {
		return nil, errors.NotFound("connection not found: %s", req.ConnectionID)
	}
	if info.IsHost {
		return nil, errors.PermissionDenied("submit answer: the host cannot answer")
	}

	var resp SubmitAnswerResponse
	err := m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		pl, ok := s.Player(info.UserID)
		if !ok {
			return errors.NotFound("submit answer: player not found: %s", info.UserID)
		}
		if pl.ConnectionID != req.ConnectionID {
			return errors.InvalidTransition("submit answer: connection %s is not the player's current connection", req.ConnectionID)
		}

		res, err := m.flow.SubmitAnswer(s, flow.SubmitRequest{
			PlayerID:   pl.PlayerID,
			QuestionID: req.QuestionID,
			Selection:  req.Selection,
			Elapsed:    m.now().Sub(s.Window.OpenTime),
		})
		if err != nil {
			return err
		}

		p.broadcast(domain.NotifyAnswerSubmitted, AnswerSubmitted{
			PlayerID:   pl.PlayerID,
			QuestionID: req.QuestionID,
			Answered:   res.Answered,
			Expected:   res.Expected,
		})
		if res.Closed != nil {
			m.closed(s, p, *res.Closed)
		}

		resp = SubmitAnswerResponse{
			QuestionID:   req.QuestionID,
			Answered:     res.Answered,
			Expected:     res.Expected,
			WindowClosed: res.Closed != nil,
		}
		return nil
	})
	if err != nil {
		telemetry.Answers.WithLabelValues("rejected").Inc()
		return nil, err
	}

	telemetry.Answers.WithLabelValues("accepted").Inc()
	return &resp, nil
}

// Advance moves to the next question, or completes the game after the last one.
func (m *Manager) Advance(ctx context.Context, connectionID string) error {
	info, err := m.host(connectionID)
	if err != nil {
		return err
	}

	return m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		if err := m.checkHost(s, connectionID); err != nil {
			return err
		}

		res, err := m.flow.Advance(s)
		if err != nil {
			return err
		}

		if res.Opened != nil {
			p.broadcast(domain.NotifyProceedingToNext, ProceedingToNext{NextIndex: res.Opened.Index})
			m.opened(s, p, *res.Opened)
			return nil
		}

		m.completed(s, p, *res.Leaderboard)
		return nil
	})
}

// End completes a started game early, scoring an open question first.
func (m *Manager) End(ctx context.Context, connectionID string) error {
	info, err := m.host(connectionID)
	if err != nil {
		return err
	}

	return m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		if err := m.checkHost(s, connectionID); err != nil {
			return err
		}

		res, err := m.flow.End(s)
		if err != nil {
			return err
		}

		if res.Closed != nil {
			m.closed(s, p, *res.Closed)
		}
		m.completed(s, p, res.Leaderboard)
		return nil
	})
}

func (m *Manager) completed(s *domain.Session, p *plan, l domain.Leaderboard) {
	slog.Info("game: completed", "room", s.RoomCode, "players", len(s.Players))

	p.broadcast(domain.NotifyGameCompleted, GameCompleted{Leaderboard: LeaderboardToView(l)})
	m.release(s, p)
	p.publish(domain.EventGameCompleted{
		RoomCode:    s.RoomCode,
		GameID:      s.GameID,
		Leaderboard: l,
	})
	m.finished(s)
}

// Abort terminates the host's room.
func (m *Manager) Abort(ctx context.Context, connectionID string) error {
	info, err := m.host(connectionID)
	if err != nil {
		return err
	}

	return m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		if err := m.checkHost(s, connectionID); err != nil {
			return err
		}
		return m.abortLocked(s, p, ReasonHostAborted)
	})
}

// AbortRoom terminates a room on behalf of an operator.
func (m *Manager) AbortRoom(ctx context.Context, code, reason string) error {
	if err := m.checkCode(code); err != nil {
		return err
	}

	return m.withRoom(ctx, code, func(s *domain.Session, p *plan) error {
		return m.abortLocked(s, p, reason)
	})
}

func (m *Manager) abortLocked(s *domain.Session, p *plan, reason string) error {
	if err := m.flow.Abort(s); err != nil {
		return err
	}

	slog.Info("game: aborted", "room", s.RoomCode, "reason", reason)

	rt := m.runtime(s.RoomCode)
	rt.cancel(timerWindow)
	rt.cancel(timerHostGrace)

	p.broadcast(domain.NotifyGameEnded, GameEnded{Reason: reason})
	m.release(s, p)
	p.publish(domain.EventGameAborted{
		RoomCode:    s.RoomCode,
		GameID:      s.GameID,
		Reason:      reason,
		Leaderboard: leaderboard.Calculate(s.RoomCode, s.Players, s.QuestionIndex, false),
	})
	m.finished(s)
	return nil
}

// release unbinds every connection of a terminal room so it can join or host another one.
// The session itself stays readable until it is removed.
func (m *Manager) release(s *domain.Session, p *plan) {
	for _, pl := range s.Players {
		if pl.ConnectionID == "" {
			continue
		}
		m.registry.Unbind(pl.ConnectionID)
		p.groupRemove(pl.ConnectionID)
		pl.ConnectionID = ""
		pl.Connected = false
	}

	if conn := s.HostConnectionID; conn != "" {
		m.registry.Unbind(conn)
		p.groupRemove(conn)
		s.HostConnectionID = ""
		s.HostConnected = false
	}
}

// finished schedules the removal of a terminal room.
func (m *Manager) finished(s *domain.Session) {
	code := s.RoomCode
	rt := m.runtime(code)
	rt.cancel(timerWindow)
	rt.cancel(timerHostGrace)
	rt.schedule(timerRemoval, m.after, m.retention, func() {
		m.onRemoval(code)
	})
}

func (m *Manager) onRemoval(code string) {
	err := m.store.WithLock(code, func(*domain.Session) error {
		m.dropRuntime(code)
		return m.store.Remove(code)
	})
	if err != nil {
		return
	}

	telemetry.RoomsActive.Dec()
	slog.Info("game: room removed", "room", code)
}

// Kick removes a player from the host's room. A kicked player cannot rejoin.
func (m *Manager) Kick(ctx context.Context, connectionID, playerID string) error {
	info, err := m.host(connectionID)
	if err != nil {
		return err
	}

	return m.withRoom(ctx, info.RoomCode, func(s *domain.Session, p *plan) error {
		if err := m.checkHost(s, connectionID); err != nil {
			return err
		}
		if s.State.Terminal() {
			return errors.InvalidTransition("kick: game is %s", s.State)
		}

		pl, ok := s.RemovePlayer(playerID)
		if !ok {
			return errors.NotFound("kick: player not found: %s", playerID)
		}
		s.Kicked[playerID] = true

		if pl.ConnectionID != "" {
			m.registry.Unbind(pl.ConnectionID)
			p.send(pl.ConnectionID, domain.NotifyKicked, Kicked{RoomCode: s.RoomCode})
			p.groupRemove(pl.ConnectionID)
		}
		p.broadcast(domain.NotifyPlayerLeft, PlayerLeft{
			PlayerID:    pl.PlayerID,
			Name:        pl.Name,
			Reason:      "kicked",
			PlayerCount: len(s.Players),
		})
		return nil
	})
}

// Room returns a snapshot of a live room.
func (m *Manager) Room(_ context.Context, code string) (*domain.Session, error) {
	if err := m.checkCode(code); err != nil {
		return nil, err
	}
	return m.store.Get(code)
}

// Rooms returns snapshots of every room held in memory, ordered by room code.
func (m *Manager) Rooms(_ context.Context) []*domain.Session {
	codes := m.store.Codes()
	slices.Sort(codes)

	rooms := make([]*domain.Session, 0, len(codes))
	for _, c := range codes {
		s, err := m.store.Get(c)
		if err != nil {
			continue
		}
		rooms = append(rooms, s)
	}
	return rooms
}

func (m *Manager) checkCode(code string) error {
	if !m.store.ValidCode(code) {
		return errors.InvalidArgument("malformed room code: %q", code)
	}
	return nil
}

// Leaderboard returns the current standings of a live room, or the archived final standings
// of a room that has already been removed.
func (m *Manager) Leaderboard(ctx context.Context, code string) (*domain.Leaderboard, error) {
	if err := m.checkCode(code); err != nil {
		return nil, err
	}

	s, err := m.store.Get(code)
	if errors.Is(err, errors.CodeNotFound) && m.archive != nil {
		return m.archive.Get(ctx, leaderboard.GetRequest{RoomCode: code})
	}
	if err != nil {
		return nil, err
	}

	l := leaderboard.Calculate(s.RoomCode, s.Players, s.QuestionIndex, s.State == domain.StateCompleted)
	return &l, nil
}

// Stop cancels every pending timer.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rt := range m.rooms {
		rt.stopAll()
	}
}
