package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-lottery-bot/internal/model"
)

// Game store errors.
var (
	ErrLotteryNotFound = errors.New("lottery not found")
	// ErrPlayersConflict means the stored player list moved between read and
	// write; the caller should re-read and retry the join.
	ErrPlayersConflict = errors.New("player list changed concurrently")
)

// LotteryRepository persists wager rounds. The stored document is the single
// source of truth for membership; resolution deletes the row, so no terminal
// state is ever kept.
type LotteryRepository struct {
	pool *pgxpool.Pool
}

// NewLotteryRepository creates a new LotteryRepository instance.
func NewLotteryRepository(pool *pgxpool.Pool) *LotteryRepository {
	return &LotteryRepository{pool: pool}
}

// Put inserts a new lottery document.
func (r *LotteryRepository) Put(ctx context.Context, l *model.Lottery) error {
	const query = `
		INSERT INTO lotteries (id, chat_id, creator, bet, player_limit, players, winner, start_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.ChatID, l.Creator, l.Bet, l.PlayerLimit, l.Players, l.Winner, l.StartTime,
	)
	if err != nil {
		return fmt.Errorf("failed to put lottery: %w", err)
	}

	return nil
}

// Get retrieves a lottery by ID.
// Returns ErrLotteryNotFound for unknown IDs, which usually means the game
// already resolved.
func (r *LotteryRepository) Get(ctx context.Context, id string) (*model.Lottery, error) {
	const query = `
		SELECT id, chat_id, creator, bet, player_limit, players, winner, start_time, created_at
		FROM lotteries
		WHERE id = $1
	`

	var l model.Lottery
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID,
		&l.ChatID,
		&l.Creator,
		&l.Bet,
		&l.PlayerLimit,
		&l.Players,
		&l.Winner,
		&l.StartTime,
		&l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLotteryNotFound
		}
		return nil, fmt.Errorf("failed to get lottery: %w", err)
	}

	return &l, nil
}

// UpdatePlayers writes the new player list only if the stored list still has
// the count the caller last read. Two near-simultaneous joins on a near-full
// game then conflict instead of both landing and overshooting the cap.
func (r *LotteryRepository) UpdatePlayers(ctx context.Context, id string, players []int64, expectedCount int) error {
	const query = `
		UPDATE lotteries
		SET players = $2
		WHERE id = $1 AND cardinality(players) = $3
	`

	result, err := r.pool.Exec(ctx, query, id, players, expectedCount)
	if err != nil {
		return fmt.Errorf("failed to update players: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a moved list from a resolved-and-deleted game.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrPlayersConflict
	}

	return nil
}

// Delete removes a lottery document. Deleting an already-deleted game is not
// an error: a fired job for a resolved game is a no-op.
func (r *LotteryRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM lotteries WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete lottery: %w", err)
	}

	return nil
}

// ListAll returns every stored lottery, oldest first. Used by the startup
// recovery scan to re-drive games whose window elapsed while no process
// was alive.
func (r *LotteryRepository) ListAll(ctx context.Context) ([]*model.Lottery, error) {
	const query = `
		SELECT id, chat_id, creator, bet, player_limit, players, winner, start_time, created_at
		FROM lotteries
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list lotteries: %w", err)
	}
	defer rows.Close()

	var lotteries []*model.Lottery
	for rows.Next() {
		var l model.Lottery
		err := rows.Scan(
			&l.ID,
			&l.ChatID,
			&l.Creator,
			&l.Bet,
			&l.PlayerLimit,
			&l.Players,
			&l.Winner,
			&l.StartTime,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lottery: %w", err)
		}
		lotteries = append(lotteries, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lotteries: %w", err)
	}

	return lotteries, nil
}
