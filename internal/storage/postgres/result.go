package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/hetman/internal/game/engine"
)

// ErrResultNotFound is returned when a result lookup yields no rows.
var ErrResultNotFound = errors.New("game result not found")

// GameResult is one archived game.
type GameResult struct {
	ID         uuid.UUID
	RoomCode   string
	Reason     string
	Rounds     int
	WinnerID   string
	WinnerName string
	TiedIDs    []string
	StartedAt  *time.Time
	EndedAt    time.Time
	Scores     []Score
}

// Score is one scoreboard line of an archived game, in final standing order.
type Score struct {
	PlayerID string
	Name     string
	Points   int
	IsBot    bool
}

// ResultRepository persists finished games.
type ResultRepository struct {
	db    *pgxpool.Pool
	owned bool
}

// NewResultRepository creates a ResultRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveResult stores res and its scoreboard in one transaction.
//
// Postcondition: Returns nil once both the result row and every score row are
// committed.
func (r *ResultRepository) SaveResult(ctx context.Context, res engine.Result) error {
	_, err := r.Save(ctx, res)
	return err
}

// Save stores res and returns the id assigned to it.
func (r *ResultRepository) Save(ctx context.Context, res engine.Result) (uuid.UUID, error) {
	id := uuid.New()
	var startedAt *time.Time
	if !res.StartedAt.IsZero() {
		t := res.StartedAt
		startedAt = &t
	}
	tied := res.TiedIDs
	if tied == nil {
		tied = []string{}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO game_results
		   (id, room_code, reason, rounds, winner_id, winner_name, tied_ids, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)`,
		id, res.Code, string(res.Reason), res.Rounds, res.WinnerID, res.WinnerName, tied, startedAt, res.EndedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting game result: %w", err)
	}

	rows := make([][]any, 0, len(res.Scoreboard))
	for i, s := range res.Scoreboard {
		rows = append(rows, []any{id, i + 1, s.PlayerID, s.Name, s.Points, res.Bots[s.PlayerID]})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"game_result_scores"},
		[]string{"result_id", "position", "player_id", "name", "points", "is_bot"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting scores: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing game result: %w", err)
	}
	return id, nil
}

// Get loads one archived game with its scoreboard.
//
// Postcondition: Returns the result or ErrResultNotFound.
func (r *ResultRepository) Get(ctx context.Context, id uuid.UUID) (GameResult, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, room_code, reason, rounds, COALESCE(winner_id, ''), COALESCE(winner_name, ''),
		        tied_ids, started_at, ended_at
		 FROM game_results WHERE id = $1`,
		id,
	)
	res, err := scanResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameResult{}, ErrResultNotFound
		}
		return GameResult{}, fmt.Errorf("querying game result: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT player_id, name, points, is_bot
		 FROM game_result_scores WHERE result_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return GameResult{}, fmt.Errorf("querying scores: %w", err)
	}
	res.Scores, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Score, error) {
		var s Score
		err := row.Scan(&s.PlayerID, &s.Name, &s.Points, &s.IsBot)
		return s, err
	})
	if err != nil {
		return GameResult{}, fmt.Errorf("scanning scores: %w", err)
	}
	return res, nil
}

// Recent lists the latest archived games, newest first, without scoreboards.
//
// Precondition: limit > 0.
func (r *ResultRepository) Recent(ctx context.Context, limit int) ([]GameResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, room_code, reason, rounds, COALESCE(winner_id, ''), COALESCE(winner_name, ''),
		        tied_ids, started_at, ended_at
		 FROM game_results ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent results: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameResult, error) {
		return scanResult(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning recent results: %w", err)
	}
	return results, nil
}

func scanResult(row pgx.Row) (GameResult, error) {
	var res GameResult
	err := row.Scan(&res.ID, &res.RoomCode, &res.Reason, &res.Rounds, &res.WinnerID, &res.WinnerName,
		&res.TiedIDs, &res.StartedAt, &res.EndedAt)
	return res, err
}
