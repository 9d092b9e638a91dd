package score

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizroom/internal/domain"
)

const defaultMinFactor = 0.5

type Config struct {
	// MinFactor is the fraction of the base points a correct answer earns at the time limit.
	// It must be in (0, 1], other values fall back to the default.
	MinFactor float64
}

// Engine turns a submission into points. Points decay linearly from the base value at
// elapsed 0 down to MinFactor of it at the question's time limit, and are 0 for an
// incorrect answer.
type Engine struct {
	minFactor decimal.Decimal
}

func NewEngine(c Config) *Engine {
	f := c.MinFactor
	if f <= 0 || f > 1 {
		f = defaultMinFactor
	}
	return &Engine{minFactor: decimal.NewFromFloat(f)}
}

type Result struct {
	Correct bool
	Points  int64
}

// Evaluate checks the selection against the question's correct options with an exact set
// match and computes the awarded points.
func (e *Engine) Evaluate(q domain.Question, selection []string, elapsed time.Duration) (Result, error) {
	if len(selection) == 0 {
		return Result{}, fmt.Errorf("score: question %s: empty selection", q.QuestionID)
	}

	chosen := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		if !q.HasOption(id) {
			return Result{}, fmt.Errorf("score: question %s: unknown option %q", q.QuestionID, id)
		}
		chosen[id] = struct{}{}
	}

	if !sameSet(chosen, q.CorrectOptionIDs) {
		return Result{Correct: false}, nil
	}

	return Result{Correct: true, Points: e.points(q.Points, elapsed, q.TimeLimit)}, nil
}

func (e *Engine) points(base int64, elapsed, limit time.Duration) int64 {
	if base <= 0 {
		return 0
	}
	if limit <= 0 {
		return base
	}

	elapsed = min(max(elapsed, 0), limit)

	// factor = 1 - (1 - minFactor) * elapsed / limit
	ratio := decimal.NewFromInt(elapsed.Milliseconds()).Div(decimal.NewFromInt(limit.Milliseconds()))
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromInt(1).Sub(e.minFactor).Mul(ratio))

	return decimal.NewFromInt(base).Mul(factor).Round(0).IntPart()
}

func sameSet(chosen map[string]struct{}, correct []string) bool {
	want := make(map[string]struct{}, len(correct))
	for _, id := range correct {
		want[id] = struct{}{}
	}
	if len(want) != len(chosen) {
		return false
	}
	for id := range want {
		if _, ok := chosen[id]; !ok {
			return false
		}
	}
	return true
}

// Apply folds one scored answer into the player's running totals without looking at history.
func Apply(p *domain.Player, r Result, elapsed time.Duration) {
	p.TotalCount++
	if r.Correct {
		p.CorrectCount++
	}
	p.Score += r.Points

	ms := float64(max(elapsed, 0).Milliseconds())
	p.AvgResponseMs += (ms - p.AvgResponseMs) / float64(p.TotalCount)
}
