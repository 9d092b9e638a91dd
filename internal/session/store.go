package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
)

type CodeGenerator interface {
	Generate(taken func(code string) bool) (string, error)
	Valid(code string) bool
}

type Config struct {
	Codes CodeGenerator
	Now   func() time.Time
}

// Store is the authoritative in-memory table of live sessions. Each room has its own lock,
// so operations on different rooms never block one another.
type Store struct {
	codes CodeGenerator
	now   func() time.Time

	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu      sync.Mutex
	removed atomic.Bool
	s       *domain.Session
}

func NewStore(c Config) *Store {
	s := &Store{
		codes: c.Codes,
		now:   c.Now,
		rooms: make(map[string]*room),
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// CreateRequest represents a request to open a new room.
type CreateRequest struct {
	GameID   string
	Title    string
	HostID   string
	HostName string
	// Questions is the snapshot of the game's question sequence.
	Questions []domain.Question
}

// Create registers a new session in the lobby state and returns its room code.
func (s *Store) Create(req CreateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.codes.Generate(func(c string) bool {
		_, ok := s.rooms[c]
		return ok
	})
	if err != nil {
		return "", err
	}

	ss := domain.NewSession(code, req.GameID, req.Title, req.Questions, s.now())
	ss.HostID = req.HostID
	ss.HostName = req.HostName

	s.rooms[code] = &room{s: ss}
	return code, nil
}

// Get returns a copy of the session, safe to read without holding the room's lock.
func (s *Store) Get(code string) (*domain.Session, error) {
	var c *domain.Session
	err := s.WithLock(code, func(ss *domain.Session) error {
		c = ss.Clone()
		return nil
	})
	return c, err
}

// Remove deletes a room. It only takes the table lock, so it may be called from inside
// WithLock for the same room.
func (s *Store) Remove(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		return notFound(code)
	}

	r.removed.Store(true)
	delete(s.rooms, code)
	return nil
}

// WithLock runs fn with exclusive access to a single room. fn must only do in-memory work,
// never outbound I/O. The error returned by fn is returned as is.
func (s *Store) WithLock(code string, fn func(*domain.Session) error) error {
	s.mu.RLock()
	r, ok := s.rooms[code]
	s.mu.RUnlock()

	if !ok {
		return notFound(code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The room may have been removed while we were waiting for its lock.
	if r.removed.Load() {
		return notFound(code)
	}

	return fn(r.s)
}

// ValidCode reports whether code could have been issued by the store.
func (s *Store) ValidCode(code string) bool {
	return s.codes.Valid(code)
}

// Codes returns the codes of all live rooms.
func (s *Store) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.rooms))
	for c := range s.rooms {
		codes = append(codes, c)
	}
	return codes
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rooms)
}

func notFound(code string) error {
	return errors.NotFound("room not found: %s", code)
}
