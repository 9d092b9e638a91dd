package leaderboard

import (
	"fmt"
	"math"
	"sort"

	"github.com/victornm/quizroom/internal/domain"
)

// Calculate ranks the players by score descending, then by average response time ascending,
// then by join order. Players without any answer are treated as slowest. Ranks are 1..n.
// The players are not modified.
func Calculate(roomCode string, players []*domain.Player, questionIndex int, final bool) domain.Leaderboard {
	ranked := make([]domain.Player, 0, len(players))
	for _, p := range players {
		ranked = append(ranked, *p)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})

	l := domain.Leaderboard{
		RoomCode:      roomCode,
		QuestionIndex: questionIndex,
		Final:         final,
		Entries:       make([]domain.LeaderboardEntry, 0, len(ranked)),
	}

	for i, p := range ranked {
		l.Entries = append(l.Entries, domain.LeaderboardEntry{
			Rank:          i + 1,
			PlayerID:      p.PlayerID,
			Name:          p.Name,
			Score:         p.Score,
			CorrectCount:  p.CorrectCount,
			TotalCount:    p.TotalCount,
			Progress:      fmt.Sprintf("%d/%d", p.CorrectCount, p.TotalCount),
			AvgResponseMs: p.AvgResponseMs,
		})
	}

	return l
}

func less(a, b domain.Player) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ra, rb := responseKey(a), responseKey(b); ra != rb {
		return ra < rb
	}
	return a.JoinOrder < b.JoinOrder
}

func responseKey(p domain.Player) float64 {
	if p.TotalCount == 0 {
		return math.Inf(1)
	}
	return p.AvgResponseMs
}
