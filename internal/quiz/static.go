package quiz

import (
	"context"
	"slices"
	"time"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
)

// GameConfig is a game definition as written in the config file.
type GameConfig struct {
	ID        string           `mapstructure:"id"`
	Title     string           `mapstructure:"title"`
	Questions []QuestionConfig `mapstructure:"questions"`
}

type QuestionConfig struct {
	ID        string         `mapstructure:"id"`
	Text      string         `mapstructure:"text"`
	Options   []OptionConfig `mapstructure:"options"`
	TimeLimit time.Duration  `mapstructure:"time_limit"`
	Points    int64          `mapstructure:"points"`
}

type OptionConfig struct {
	ID      string `mapstructure:"id"`
	Text    string `mapstructure:"text"`
	Correct bool   `mapstructure:"correct"`
}

// Static serves game definitions held in memory.
type Static struct {
	games map[string]domain.Game
}

func NewStatic(games []GameConfig) *Static {
	s := &Static{games: make(map[string]domain.Game, len(games))}

	for _, gc := range games {
		g := domain.Game{GameID: gc.ID, Title: gc.Title}
		for _, qc := range gc.Questions {
			q := domain.Question{
				QuestionID: qc.ID,
				Text:       qc.Text,
				TimeLimit:  qc.TimeLimit,
				Points:     qc.Points,
			}
			for _, oc := range qc.Options {
				q.Options = append(q.Options, domain.Option{OptionID: oc.ID, OptionText: oc.Text})
				if oc.Correct {
					q.CorrectOptionIDs = append(q.CorrectOptionIDs, oc.ID)
				}
			}
			g.Questions = append(g.Questions, q)
		}
		s.games[g.GameID] = g
	}

	return s
}

func (s *Static) GetGame(_ context.Context, gameID string) (*domain.Game, error) {
	g, ok := s.games[gameID]
	if !ok {
		return nil, errors.NotFound("game not found: %s", gameID)
	}

	g.Questions = slices.Clone(g.Questions)
	return &g, nil
}
