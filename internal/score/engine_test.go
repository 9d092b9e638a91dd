package score_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/score"
)

var question = domain.Question{
	QuestionID: "q1",
	Options: []domain.Option{
		{OptionID: "a"}, {OptionID: "b"}, {OptionID: "c"},
	},
	CorrectOptionIDs: []string{"a"},
	TimeLimit:        10 * time.Second,
	Points:           1000,
}

func TestEngine_Evaluate(t *testing.T) {
	multi := question
	multi.CorrectOptionIDs = []string{"a", "c"}

	tests := map[string]struct {
		q         domain.Question
		selection []string
		elapsed   time.Duration
		want      score.Result
		wantErr   bool
	}{
		"instant correct answer earns full points": {
			q: question, selection: []string{"a"}, elapsed: 0,
			want: score.Result{Correct: true, Points: 1000},
		},
		"correct answer at half time": {
			q: question, selection: []string{"a"}, elapsed: 5 * time.Second,
			want: score.Result{Correct: true, Points: 750},
		},
		"correct answer at the limit earns the minimum": {
			q: question, selection: []string{"a"}, elapsed: 10 * time.Second,
			want: score.Result{Correct: true, Points: 500},
		},
		"late answers are clamped to the limit": {
			q: question, selection: []string{"a"}, elapsed: time.Minute,
			want: score.Result{Correct: true, Points: 500},
		},
		"incorrect answer earns nothing": {
			q: question, selection: []string{"b"}, elapsed: time.Second,
			want: score.Result{Correct: false, Points: 0},
		},
		"multi answer needs the exact set": {
			q: multi, selection: []string{"c", "a"}, elapsed: 0,
			want: score.Result{Correct: true, Points: 1000},
		},
		"multi answer subset is incorrect": {
			q: multi, selection: []string{"a"}, elapsed: 0,
			want: score.Result{Correct: false},
		},
		"multi answer superset is incorrect": {
			q: multi, selection: []string{"a", "b", "c"}, elapsed: 0,
			want: score.Result{Correct: false},
		},
		"unknown option is an error": {
			q: question, selection: []string{"z"}, wantErr: true,
		},
		"empty selection is an error": {
			q: question, selection: nil, wantErr: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := score.NewEngine(score.Config{}).Evaluate(tt.q, tt.selection, tt.elapsed)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_MonotonicAndBounded(t *testing.T) {
	for _, f := range []float64{0.1, 0.25, 0.5, 1} {
		e := score.NewEngine(score.Config{MinFactor: f})

		prev := int64(question.Points) + 1
		for ms := int64(-500); ms <= 12_000; ms += 250 {
			r, err := e.Evaluate(question, []string{"a"}, time.Duration(ms)*time.Millisecond)
			require.NoError(t, err)
			require.LessOrEqual(t, r.Points, prev, "points must not increase with time (factor %v, %dms)", f, ms)
			require.GreaterOrEqual(t, r.Points, int64(0))
			require.LessOrEqual(t, r.Points, question.Points)
			prev = r.Points
		}
	}
}

func TestEngine_NoTimeLimit(t *testing.T) {
	q := question
	q.TimeLimit = 0

	r, err := score.NewEngine(score.Config{}).Evaluate(q, []string{"a"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), r.Points)
}

func TestApply(t *testing.T) {
	p := &domain.Player{PlayerID: "p1"}

	score.Apply(p, score.Result{Correct: true, Points: 900}, 2*time.Second)
	score.Apply(p, score.Result{Correct: false}, 4*time.Second)
	score.Apply(p, score.Result{Correct: true, Points: 600}, 3*time.Second)

	assert.Equal(t, int64(1500), p.Score)
	assert.Equal(t, 2, p.CorrectCount)
	assert.Equal(t, 3, p.TotalCount)
	assert.InDelta(t, 3000, p.AvgResponseMs, 0.001)
}
