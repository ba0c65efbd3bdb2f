package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-lottery-bot/internal/model"
)

// Streak store errors.
var (
	ErrStreakNotFound = errors.New("streak game not found")
	// ErrStreakConflict means the join list moved between read and write.
	ErrStreakConflict = errors.New("streak join list changed concurrently")
)

// StreakRepository persists escalating-risk rounds. Like lotteries, a
// resolved game is deleted rather than flagged.
type StreakRepository struct {
	pool *pgxpool.Pool
}

// NewStreakRepository creates a new StreakRepository instance.
func NewStreakRepository(pool *pgxpool.Pool) *StreakRepository {
	return &StreakRepository{pool: pool}
}

// Put inserts a new streak game document.
func (r *StreakRepository) Put(ctx context.Context, g *model.StreakGame) error {
	const query = `
		INSERT INTO streak_games (id, chat_id, creator, bet, joins, pot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := r.pool.Exec(ctx, query, g.ID, g.ChatID, g.Creator, g.Bet, g.Joins, g.Pot)
	if err != nil {
		return fmt.Errorf("failed to put streak game: %w", err)
	}

	return nil
}

// Get retrieves a streak game by ID.
func (r *StreakRepository) Get(ctx context.Context, id string) (*model.StreakGame, error) {
	const query = `
		SELECT id, chat_id, creator, bet, joins, pot, created_at
		FROM streak_games
		WHERE id = $1
	`

	var g model.StreakGame
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&g.ID,
		&g.ChatID,
		&g.Creator,
		&g.Bet,
		&g.Joins,
		&g.Pot,
		&g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStreakNotFound
		}
		return nil, fmt.Errorf("failed to get streak game: %w", err)
	}

	return &g, nil
}

// UpdateJoins writes the new join list and pot only if the stored join count
// still matches what the caller read.
func (r *StreakRepository) UpdateJoins(ctx context.Context, id string, joins []int64, pot int64, expectedCount int) error {
	const query = `
		UPDATE streak_games
		SET joins = $2, pot = $3
		WHERE id = $1 AND cardinality(joins) = $4
	`

	result, err := r.pool.Exec(ctx, query, id, joins, pot, expectedCount)
	if err != nil {
		return fmt.Errorf("failed to update streak joins: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrStreakConflict
	}

	return nil
}

// ListByChat returns the stored streak games for one chat, oldest first.
func (r *StreakRepository) ListByChat(ctx context.Context, chatID int64) ([]*model.StreakGame, error) {
	const query = `
		SELECT id, chat_id, creator, bet, joins, pot, created_at
		FROM streak_games
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streak games: %w", err)
	}
	defer rows.Close()

	var games []*model.StreakGame
	for rows.Next() {
		var g model.StreakGame
		err := rows.Scan(
			&g.ID,
			&g.ChatID,
			&g.Creator,
			&g.Bet,
			&g.Joins,
			&g.Pot,
			&g.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streak game: %w", err)
		}
		games = append(games, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating streak games: %w", err)
	}

	return games, nil
}

// Delete removes a streak game document.
func (r *StreakRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM streak_games WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete streak game: %w", err)
	}

	return nil
}
