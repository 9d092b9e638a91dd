package quiz

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
)

// psq is the statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres reads game definitions from the tables owned by the game editor:
//
//	games(id, title)
//	questions(id, game_id, position, text, time_limit_ms, points)
//	options(id, question_id, position, text, correct)
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	query, args, err := psq.Select("id", "title").
		From("games").
		Where(sq.Eq{"id": gameID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("quiz: build game query: %w", err)
	}

	g := &domain.Game{}
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&g.GameID, &g.Title)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("game not found: %s", gameID)
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("quiz: query game %s: %w", gameID, err))
	}

	g.Questions, err = p.questions(ctx, gameID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	return g, nil
}

func (p *Postgres) questions(ctx context.Context, gameID string) ([]domain.Question, error) {
	query, args, err := psq.Select(
		"q.id", "q.text", "q.time_limit_ms", "q.points",
		"o.id", "o.text", "o.correct",
	).From("questions q").
		LeftJoin("options o ON o.question_id = q.id").
		Where(sq.Eq{"q.game_id": gameID}).
		OrderBy("q.position", "o.position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("quiz: build questions query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("quiz: query questions of %s: %w", gameID, err)
	}
	defer func() { _ = rows.Close() }()

	var qs []domain.Question
	for rows.Next() {
		var (
			qid, text  string
			limitMs    int64
			points     int64
			oid, otext sql.NullString
			correct    sql.NullBool
		)
		if err := rows.Scan(&qid, &text, &limitMs, &points, &oid, &otext, &correct); err != nil {
			return nil, fmt.Errorf("quiz: scan question row: %w", err)
		}

		if len(qs) == 0 || qs[len(qs)-1].QuestionID != qid {
			qs = append(qs, domain.Question{
				QuestionID: qid,
				Text:       text,
				TimeLimit:  time.Duration(limitMs) * time.Millisecond,
				Points:     points,
			})
		}

		if !oid.Valid {
			continue
		}
		q := &qs[len(qs)-1]
		q.Options = append(q.Options, domain.Option{OptionID: oid.String, OptionText: otext.String})
		if correct.Bool {
			q.CorrectOptionIDs = append(q.CorrectOptionIDs, oid.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quiz: iterate question rows: %w", err)
	}

	return qs, nil
}
