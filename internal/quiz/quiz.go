// Package quiz provides read-only access to game definitions.
package quiz

import (
	"context"

	"github.com/victornm/quizroom/internal/domain"
)

type Provider interface {
	GetGame(ctx context.Context, gameID string) (*domain.Game, error)
}

var (
	_ Provider = (*Postgres)(nil)
	_ Provider = (*Static)(nil)
)
