package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/event"
)

var answerResponse = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "answer_response_seconds",
	Help:      "Time from a question opening to a player's answer, by correctness.",
	Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30, 60},
}, []string{"correct"})

// ObserveAnswers records the response time of every scored answer once its window closes.
func ObserveAnswers(eb *event.Bus) {
	eb.Subscribe(domain.EventNameQuestionClosed, func(_ context.Context, e event.Event) error {
		observeAnswers(answerResponse, e.(domain.EventQuestionClosed))
		return nil
	})
}

func observeAnswers(h *prometheus.HistogramVec, e domain.EventQuestionClosed) {
	for _, sub := range e.Submissions {
		if !sub.Scored {
			continue
		}
		h.WithLabelValues(strconv.FormatBool(sub.Correct)).Observe(sub.Elapsed.Seconds())
	}
}
