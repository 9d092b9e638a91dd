package domain

import (
	"slices"
	"time"
)

// Game is the read-only definition of a quiz, as returned by a definitions provider.
type Game struct {
	GameID    string
	Title     string
	Questions []Question
}

type Question struct {
	QuestionID       string
	Text             string
	Options          []Option
	CorrectOptionIDs []string
	TimeLimit        time.Duration
	Points           int64
}

type Option struct {
	OptionID   string
	OptionText string
}

// HasOption reports whether id is one of the question's options.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.OptionID == id {
			return true
		}
	}
	return false
}

// Session represents a live game room. It is owned by the session store and must only be
// mutated while holding the room's lock.
type Session struct {
	RoomCode string
	GameID   string
	Title    string

	HostID            string
	HostName          string
	HostConnectionID  string
	HostConnected     bool
	HostDisconnectSeq uint64

	Questions []Question
	// Answers maps question ID to the submissions keyed by player ID.
	Answers map[string]map[string]*AnswerSubmission

	CreateTime    time.Time
	EndTime       time.Time
	State         State
	QuestionIndex int
	Window        Window

	// Players is the roster in join order.
	Players []*Player
	Kicked  map[string]bool

	joinSeq int
}

// Window is the answer window of the current question.
type Window struct {
	Open       bool
	QuestionID string
	// Seq identifies the window, so a stale timer never closes a later one.
	Seq      uint64
	OpenTime time.Time
}

func NewSession(roomCode, gameID, title string, questions []Question, now time.Time) *Session {
	return &Session{
		RoomCode:      roomCode,
		GameID:        gameID,
		Title:         title,
		Questions:     questions,
		Answers:       make(map[string]map[string]*AnswerSubmission),
		CreateTime:    now,
		State:         StateLobby,
		QuestionIndex: -1,
		Kicked:        make(map[string]bool),
	}
}

// CurrentQuestion returns the question at QuestionIndex, or false outside the question sequence.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.QuestionIndex], true
}

func (s *Session) Player(id string) (*Player, bool) {
	for _, p := range s.Players {
		if p.PlayerID == id {
			return p, true
		}
	}
	return nil, false
}

// AddPlayer appends a new player to the roster and assigns its join order.
func (s *Session) AddPlayer(p *Player) {
	s.joinSeq++
	p.JoinOrder = s.joinSeq
	s.Players = append(s.Players, p)
}

func (s *Session) RemovePlayer(id string) (*Player, bool) {
	for i, p := range s.Players {
		if p.PlayerID == id {
			s.Players = slices.Delete(s.Players, i, i+1)
			return p, true
		}
	}
	return nil, false
}

// ConnectedPlayers returns the number of players with a live connection.
func (s *Session) ConnectedPlayers() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Clone returns a deep copy that is safe to read without the room's lock.
func (s *Session) Clone() *Session {
	c := *s
	c.Questions = slices.Clone(s.Questions)
	c.Answers = make(map[string]map[string]*AnswerSubmission, len(s.Answers))
	for q, subs := range s.Answers {
		m := make(map[string]*AnswerSubmission, len(subs))
		for p, sub := range subs {
			cp := *sub
			cp.Selection = slices.Clone(sub.Selection)
			m[p] = &cp
		}
		c.Answers[q] = m
	}
	c.Players = make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		cp := *p
		c.Players = append(c.Players, &cp)
	}
	c.Kicked = make(map[string]bool, len(s.Kicked))
	for k, v := range s.Kicked {
		c.Kicked[k] = v
	}
	return &c
}

// Player is a participant of a session. PlayerID is stable across reconnections, the
// connection ID is not.
type Player struct {
	PlayerID     string
	Name         string
	ConnectionID string
	Connected    bool
	JoinTime     time.Time
	JoinOrder    int

	Score         int64
	CorrectCount  int
	TotalCount    int
	AvgResponseMs float64
}

// AnswerSubmission is a recorded answer. Correct and Points are set by the score pass when
// the window closes.
type AnswerSubmission struct {
	PlayerID   string
	QuestionID string
	Selection  []string
	Elapsed    time.Duration

	Scored  bool
	Correct bool
	Points  int64
}

// ConnectionInfo binds a live connection to a room and a user.
type ConnectionInfo struct {
	ConnectionID string
	RoomCode     string
	UserID       string
	UserName     string
	IsHost       bool
}

// Leaderboard is a ranked projection of a session's players. It is never stored in the
// session, it is recomputed from the roster.
type Leaderboard struct {
	RoomCode      string
	QuestionIndex int
	Final         bool
	Entries       []LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank          int
	PlayerID      string
	Name          string
	Score         int64
	CorrectCount  int
	TotalCount    int
	Progress      string
	AvgResponseMs float64
}
