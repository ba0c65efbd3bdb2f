package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-lottery-bot/internal/model"
)

// Ledger errors.
var (
	ErrEmptyUpdate = errors.New("ledger update must touch at least one participant")
)

// BalanceUpdate is one participant's signed offset change within a
// multi-party settlement.
type BalanceUpdate struct {
	ParticipantID int64
	Amount        int64
	Type          string
	Description   *string
}

// LedgerRepository handles reputation offsets and their history. Settlement
// is all-or-nothing: every offset change and its history row commit in one
// transaction or none do.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// ApplyMulti applies every update within a single transaction. Updates are
// applied in participant-ID order so concurrent settlements touching
// overlapping participants serialize on row locks instead of deadlocking;
// disjoint settlements do not block each other.
func (r *LedgerRepository) ApplyMulti(ctx context.Context, updates []BalanceUpdate) error {
	if len(updates) == 0 {
		return ErrEmptyUpdate
	}

	sorted := make([]BalanceUpdate, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ParticipantID < sorted[j].ParticipantID
	})

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateQuery = `
		UPDATE participants
		SET reputation_offset = reputation_offset + $2, updated_at = NOW()
		WHERE id = $1
	`
	const entryQuery = `
		INSERT INTO ledger_entries (participant_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	for _, u := range sorted {
		result, err := tx.Exec(ctx, updateQuery, u.ParticipantID, u.Amount)
		if err != nil {
			return fmt.Errorf("failed to update offset for participant %d: %w", u.ParticipantID, err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("ledger update for participant %d: %w", u.ParticipantID, ErrParticipantNotFound)
		}

		if _, err := tx.Exec(ctx, entryQuery, u.ParticipantID, u.Amount, u.Type, u.Description); err != nil {
			return fmt.Errorf("failed to record ledger entry for participant %d: %w", u.ParticipantID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}

	return nil
}

// GetHistory retrieves a participant's entries, newest first.
func (r *LedgerRepository) GetHistory(ctx context.Context, participantID int64, limit int) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT id, participant_id, amount, type, description, created_at
		FROM ledger_entries
		WHERE participant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger history: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		err := rows.Scan(
			&e.ID,
			&e.ParticipantID,
			&e.Amount,
			&e.Type,
			&e.Description,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}
