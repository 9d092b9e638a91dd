package flow

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/leaderboard"
	"github.com/victornm/quizroom/internal/score"
)

// Reasons a window closes.
const (
	ReasonTimeout     = "timeout"
	ReasonAllAnswered = "all_answered"
	ReasonHostEnded   = "host_ended"
)

type Scorer interface {
	Evaluate(q domain.Question, selection []string, elapsed time.Duration) (score.Result, error)
}

type Config struct {
	Score Scorer
	Now   func() time.Time
}

// Controller drives a session through its question sequence. It holds no state of its own;
// every method expects the caller to hold the session's lock.
type Controller struct {
	score Scorer
	now   func() time.Time
}

func NewController(c Config) *Controller {
	ctrl := &Controller{
		score: c.Score,
		now:   c.Now,
	}

	if ctrl.now == nil {
		ctrl.now = time.Now
	}

	return ctrl
}

// Opened describes a freshly opened answer window.
type Opened struct {
	Index    int
	Count    int
	Question domain.Question
	Seq      uint64
}

// Start moves a lobby with at least one question and one player into the first question.
func (c *Controller) Start(s *domain.Session) (Opened, error) {
	if s.State != domain.StateLobby {
		return Opened{}, errors.InvalidTransition("start room %s: game is %s", s.RoomCode, s.State)
	}
	if len(s.Questions) == 0 {
		return Opened{}, errors.InvalidTransition("start room %s: game has no questions", s.RoomCode)
	}
	if len(s.Players) == 0 {
		return Opened{}, errors.InvalidTransition("start room %s: no players joined", s.RoomCode)
	}

	if err := transition(s, domain.StateInProgress); err != nil {
		return Opened{}, err
	}
	s.QuestionIndex = 0

	return c.openWindow(s), nil
}

func (c *Controller) openWindow(s *domain.Session) Opened {
	q := s.Questions[s.QuestionIndex]

	s.Window = domain.Window{
		Open:       true,
		QuestionID: q.QuestionID,
		Seq:        s.Window.Seq + 1,
		OpenTime:   c.now(),
	}
	if s.Answers[q.QuestionID] == nil {
		s.Answers[q.QuestionID] = make(map[string]*domain.AnswerSubmission)
	}

	return Opened{
		Index:    s.QuestionIndex,
		Count:    len(s.Questions),
		Question: q,
		Seq:      s.Window.Seq,
	}
}

type SubmitRequest struct {
	PlayerID   string
	QuestionID string
	Selection  []string
	// Elapsed is the time since the window opened.
	Elapsed time.Duration
}

type SubmitResult struct {
	Submission domain.AnswerSubmission
	// Answered and Expected count connected players only.
	Answered int
	Expected int
	// Closed is set when this submission was the last one missing and closed the window.
	Closed *CloseResult
}

// SubmitAnswer records the first answer of a player for the open question. When every
// connected player has answered, the window is closed immediately.
func (c *Controller) SubmitAnswer(s *domain.Session, req SubmitRequest) (SubmitResult, error) {
	if len(req.Selection) == 0 {
		return SubmitResult{}, errors.InvalidArgument("submit answer: empty selection")
	}
	if s.State != domain.StateInProgress || !s.Window.Open {
		return SubmitResult{}, errors.InvalidTransition("submit answer: room %s: answer window is closed", s.RoomCode)
	}
	if req.QuestionID != s.Window.QuestionID {
		return SubmitResult{}, errors.InvalidTransition("submit answer: room %s: question %s is not open", s.RoomCode, req.QuestionID)
	}

	p, ok := s.Player(req.PlayerID)
	if !ok {
		return SubmitResult{}, errors.NotFound("submit answer: room %s: player not found: %s", s.RoomCode, req.PlayerID)
	}
	if !p.Connected {
		return SubmitResult{}, errors.InvalidTransition("submit answer: room %s: player %s is disconnected", s.RoomCode, req.PlayerID)
	}

	answers := s.Answers[req.QuestionID]
	if _, ok := answers[req.PlayerID]; ok {
		return SubmitResult{}, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer is already submitted: room=%s player=%s question=%s", s.RoomCode, req.PlayerID, req.QuestionID))
	}

	sub := &domain.AnswerSubmission{
		PlayerID:   req.PlayerID,
		QuestionID: req.QuestionID,
		Selection:  slices.Clone(req.Selection),
		Elapsed:    max(req.Elapsed, 0),
	}
	answers[req.PlayerID] = sub

	res := SubmitResult{Submission: *sub}
	res.Answered, res.Expected = answeredCount(s, answers)

	if res.Expected > 0 && res.Answered >= res.Expected {
		if closed, ok := c.CloseWindow(s, s.Window.Seq, ReasonAllAnswered); ok {
			res.Closed = &closed
		}
	}

	return res, nil
}

func answeredCount(s *domain.Session, answers map[string]*domain.AnswerSubmission) (answered, expected int) {
	for _, p := range s.Players {
		if !p.Connected {
			continue
		}
		expected++
		if _, ok := answers[p.PlayerID]; ok {
			answered++
		}
	}
	return answered, expected
}

// CloseResult describes a closed window and its score pass.
type CloseResult struct {
	Index            int
	QuestionID       string
	CorrectOptionIDs []string
	Reason           string
	Submissions      []domain.AnswerSubmission
	Leaderboard      domain.Leaderboard
}

// CloseWindow closes the window identified by seq and scores every recorded submission. It
// is idempotent: closing a window that is already closed, or a window other than the current
// one, reports false and changes nothing.
func (c *Controller) CloseWindow(s *domain.Session, seq uint64, reason string) (CloseResult, bool) {
	if s.State != domain.StateInProgress || !s.Window.Open || s.Window.Seq != seq {
		return CloseResult{}, false
	}

	if err := transition(s, domain.StateWaitingForHost); err != nil {
		return CloseResult{}, false
	}
	s.Window.Open = false

	q, _ := s.CurrentQuestion()
	answers := s.Answers[q.QuestionID]

	res := CloseResult{
		Index:            s.QuestionIndex,
		QuestionID:       q.QuestionID,
		CorrectOptionIDs: slices.Clone(q.CorrectOptionIDs),
		Reason:           reason,
	}

	for _, p := range s.Players {
		sub, ok := answers[p.PlayerID]
		if !ok || sub.Scored {
			continue
		}

		r, err := c.evaluate(q, sub)
		if err != nil {
			slog.Error("flow: score answer failed",
				"room", s.RoomCode,
				"question", q.QuestionID,
				"player", p.PlayerID,
				"error", err,
			)
			r = score.Result{}
		}

		sub.Scored = true
		sub.Correct = r.Correct
		sub.Points = r.Points
		score.Apply(p, r, sub.Elapsed)

		cp := *sub
		cp.Selection = slices.Clone(sub.Selection)
		res.Submissions = append(res.Submissions, cp)
	}

	res.Leaderboard = leaderboard.Calculate(s.RoomCode, s.Players, s.QuestionIndex, false)
	return res, true
}

func (c *Controller) evaluate(q domain.Question, sub *domain.AnswerSubmission) (r score.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	return c.score.Evaluate(q, sub.Selection, sub.Elapsed)
}

type AdvanceResult struct {
	// Opened is set when a next question exists.
	Opened *Opened
	// Leaderboard is the final leaderboard when the game completed.
	Leaderboard *domain.Leaderboard
}

// Advance moves from the results of one question to the next one, or completes the game
// after the last question.
func (c *Controller) Advance(s *domain.Session) (AdvanceResult, error) {
	if s.State != domain.StateWaitingForHost {
		return AdvanceResult{}, errors.InvalidTransition("advance room %s: game is %s", s.RoomCode, s.State)
	}

	if s.QuestionIndex+1 < len(s.Questions) {
		if err := transition(s, domain.StateInProgress); err != nil {
			return AdvanceResult{}, err
		}
		s.QuestionIndex++
		o := c.openWindow(s)
		return AdvanceResult{Opened: &o}, nil
	}

	l, err := c.complete(s)
	if err != nil {
		return AdvanceResult{}, err
	}
	return AdvanceResult{Leaderboard: &l}, nil
}

func (c *Controller) complete(s *domain.Session) (domain.Leaderboard, error) {
	if err := transition(s, domain.StateCompleted); err != nil {
		return domain.Leaderboard{}, err
	}
	s.EndTime = c.now()
	return leaderboard.Calculate(s.RoomCode, s.Players, s.QuestionIndex, true), nil
}

type EndResult struct {
	// Closed is set when an open window had to be closed first.
	Closed      *CloseResult
	Leaderboard domain.Leaderboard
}

// End completes a started game early. An open window is closed and scored first, so the
// game still passes through the results state.
func (c *Controller) End(s *domain.Session) (EndResult, error) {
	if s.State != domain.StateInProgress && s.State != domain.StateWaitingForHost {
		return EndResult{}, errors.InvalidTransition("end room %s: game is %s", s.RoomCode, s.State)
	}

	var res EndResult
	if s.State == domain.StateInProgress {
		closed, ok := c.CloseWindow(s, s.Window.Seq, ReasonHostEnded)
		if !ok {
			return EndResult{}, errors.InvalidTransition("end room %s: no open window", s.RoomCode)
		}
		res.Closed = &closed
	}

	l, err := c.complete(s)
	if err != nil {
		return EndResult{}, err
	}
	res.Leaderboard = l
	return res, nil
}

// Abort terminates a non-terminal game and discards any open window.
func (c *Controller) Abort(s *domain.Session) error {
	if err := transition(s, domain.StateAborted); err != nil {
		return err
	}
	s.Window.Open = false
	s.EndTime = c.now()
	return nil
}

func transition(s *domain.Session, to domain.State) error {
	if !domain.CanTransition(s.State, to) {
		return errors.InvalidTransition("room %s: cannot go from %s to %s", s.RoomCode, s.State, to)
	}
	s.State = to
	return nil
}
