package game

import (
	"time"

	"github.com/victornm/quizroom/internal/domain"
)

// Payloads of outbound notifications. They are plain values built under the room lock.
type (
	PlayerView struct {
		PlayerID  string `json:"player_id"`
		Name      string `json:"name"`
		Connected bool   `json:"connected"`
		Score     int64  `json:"score"`
	}

	OptionView struct {
		OptionID string `json:"option_id"`
		Text     string `json:"text"`
	}

	QuestionView struct {
		Index       int          `json:"index"`
		Count       int          `json:"count"`
		QuestionID  string       `json:"question_id"`
		Text        string       `json:"text"`
		Options     []OptionView `json:"options"`
		TimeLimitMs int64        `json:"time_limit_ms"`
		RemainingMs int64        `json:"remaining_ms"`
		Points      int64        `json:"points"`
		Answered    bool         `json:"answered,omitempty"`
	}

	LeaderboardView struct {
		RoomCode      string      `json:"room_code"`
		QuestionIndex int         `json:"question_index"`
		Final         bool        `json:"final"`
		Entries       []EntryView `json:"entries"`
	}

	EntryView struct {
		Rank          int     `json:"rank"`
		PlayerID      string  `json:"player_id"`
		Name          string  `json:"name"`
		Score         int64   `json:"score"`
		CorrectCount  int     `json:"correct_count"`
		TotalCount    int     `json:"total_count"`
		Progress      string  `json:"progress"`
		AvgResponseMs float64 `json:"avg_response_ms"`
	}

	RoomCreated struct {
		RoomCode      string `json:"room_code"`
		GameID        string `json:"game_id"`
		Title         string `json:"title"`
		QuestionCount int    `json:"question_count"`
	}

	LobbyState struct {
		RoomCode      string        `json:"room_code"`
		Title         string        `json:"title"`
		State         string        `json:"state"`
		IsHost        bool          `json:"is_host"`
		PlayerID      string        `json:"player_id,omitempty"`
		QuestionIndex int           `json:"question_index"`
		QuestionCount int           `json:"question_count"`
		Players       []PlayerView  `json:"players"`
		Question      *QuestionView `json:"question,omitempty"`
	}

	PlayerJoined struct {
		Player       PlayerView `json:"player"`
		Reconnected  bool       `json:"reconnected"`
		PlayerCount  int        `json:"player_count"`
		HostRejoined bool       `json:"host_rejoined,omitempty"`
	}

	PlayerLeft struct {
		PlayerID    string `json:"player_id"`
		Name        string `json:"name"`
		Reason      string `json:"reason"`
		PlayerCount int    `json:"player_count"`
	}

	PlayerDisconnected struct {
		PlayerID string `json:"player_id"`
		Name     string `json:"name"`
		IsHost   bool   `json:"is_host"`
	}

	AnswerSubmitted struct {
		PlayerID   string `json:"player_id"`
		QuestionID string `json:"question_id"`
		Answered   int    `json:"answered"`
		Expected   int    `json:"expected"`
	}

	AnswerResult struct {
		PlayerID  string   `json:"player_id"`
		Selection []string `json:"selection"`
		Correct   bool     `json:"correct"`
		Points    int64    `json:"points"`
		ElapsedMs int64    `json:"elapsed_ms"`
	}

	QuestionClosed struct {
		Index            int             `json:"index"`
		QuestionID       string          `json:"question_id"`
		CorrectOptionIDs []string        `json:"correct_option_ids"`
		Reason           string          `json:"reason"`
		Results          []AnswerResult  `json:"results"`
		Leaderboard      LeaderboardView `json:"leaderboard"`
	}

	ProceedingToNext struct {
		NextIndex int `json:"next_index"`
	}

	GameCompleted struct {
		Leaderboard LeaderboardView `json:"leaderboard"`
	}

	GameEnded struct {
		Reason string `json:"reason"`
	}

	Kicked struct {
		RoomCode string `json:"room_code"`
	}

	ErrorPayload struct {
		Code    uint32 `json:"code"`
		Message string `json:"message"`
	}
)

func playerView(p *domain.Player) PlayerView {
	return PlayerView{
		PlayerID:  p.PlayerID,
		Name:      p.Name,
		Connected: p.Connected,
		Score:     p.Score,
	}
}

func playerViews(players []*domain.Player) []PlayerView {
	vs := make([]PlayerView, 0, len(players))
	for _, p := range players {
		vs = append(vs, playerView(p))
	}
	return vs
}

func questionView(q domain.Question, index, count int, remaining time.Duration) QuestionView {
	v := QuestionView{
		Index:       index,
		Count:       count,
		QuestionID:  q.QuestionID,
		Text:        q.Text,
		Options:     make([]OptionView, 0, len(q.Options)),
		TimeLimitMs: q.TimeLimit.Milliseconds(),
		RemainingMs: max(remaining, 0).Milliseconds(),
		Points:      q.Points,
	}
	for _, o := range q.Options {
		v.Options = append(v.Options, OptionView{OptionID: o.OptionID, Text: o.OptionText})
	}
	return v
}

// LeaderboardToView converts a leaderboard into its wire shape.
func LeaderboardToView(l domain.Leaderboard) LeaderboardView {
	v := LeaderboardView{
		RoomCode:      l.RoomCode,
		QuestionIndex: l.QuestionIndex,
		Final:         l.Final,
		Entries:       make([]EntryView, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		v.Entries = append(v.Entries, EntryView{
			Rank:          e.Rank,
			PlayerID:      e.PlayerID,
			Name:          e.Name,
			Score:         e.Score,
			CorrectCount:  e.CorrectCount,
			TotalCount:    e.TotalCount,
			Progress:      e.Progress,
			AvgResponseMs: e.AvgResponseMs,
		})
	}
	return v
}

func answerResults(subs []domain.AnswerSubmission) []AnswerResult {
	rs := make([]AnswerResult, 0, len(subs))
	for _, s := range subs {
		rs = append(rs, AnswerResult{
			PlayerID:  s.PlayerID,
			Selection: s.Selection,
			Correct:   s.Correct,
			Points:    s.Points,
			ElapsedMs: s.Elapsed.Milliseconds(),
		})
	}
	return rs
}
