// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-lottery-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrParticipantNotFound = errors.New("participant not found")
)

// ParticipantRepository handles participant account persistence.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository instance.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// Create creates a new participant. Membership starts now; the reputation
// offset starts at zero, so the initial balance is purely the derived base.
func (r *ParticipantRepository) Create(ctx context.Context, id int64, username string) (*model.Participant, error) {
	const query = `
		INSERT INTO participants (id, username, joined_at, reputation_offset, created_at, updated_at)
		VALUES ($1, $2, NOW(), 0, NOW(), NOW())
		RETURNING id, username, joined_at, reputation_offset, created_at, updated_at
	`

	var p model.Participant
	err := r.pool.QueryRow(ctx, query, id, username).Scan(
		&p.ID,
		&p.Username,
		&p.JoinedAt,
		&p.ReputationOffset,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	return &p, nil
}

// GetByID retrieves a participant by ID.
// Returns ErrParticipantNotFound if no such account exists.
func (r *ParticipantRepository) GetByID(ctx context.Context, id int64) (*model.Participant, error) {
	const query = `
		SELECT id, username, joined_at, reputation_offset, created_at, updated_at
		FROM participants
		WHERE id = $1
	`

	var p model.Participant
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Username,
		&p.JoinedAt,
		&p.ReputationOffset,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return &p, nil
}

// GetOrCreate retrieves a participant, creating the account on first contact.
func (r *ParticipantRepository) GetOrCreate(ctx context.Context, id int64, username string) (*model.Participant, bool, error) {
	p, err := r.GetByID(ctx, id)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrParticipantNotFound) {
		return nil, false, err
	}

	p, err = r.Create(ctx, id, username)
	if err != nil {
		// Handle race condition: another request might have created the account
		p, err = r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return p, false, nil
	}

	return p, true, nil
}

// UpdateUsername refreshes a participant's display name.
func (r *ParticipantRepository) UpdateUsername(ctx context.Context, id int64, username string) error {
	const query = `
		UPDATE participants
		SET username = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}

	return nil
}

// GetTop retrieves the top N participants ordered by displayed balance, which
// is the membership-derived base plus the stored offset. The base formula
// must match service/account.go.
func (r *ParticipantRepository) GetTop(ctx context.Context, limit int, baseFloor, basePerDay int64) ([]*model.Participant, error) {
	const query = `
		SELECT id, username, joined_at, reputation_offset, created_at, updated_at
		FROM participants
		ORDER BY $2::bigint + $3::bigint * FLOOR(EXTRACT(EPOCH FROM (NOW() - joined_at)) / 86400)::bigint + reputation_offset DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit, baseFloor, basePerDay)
	if err != nil {
		return nil, fmt.Errorf("failed to get top participants: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		var p model.Participant
		err := rows.Scan(
			&p.ID,
			&p.Username,
			&p.JoinedAt,
			&p.ReputationOffset,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// GetManyByID retrieves several participants at once, keyed by ID. Missing
// accounts are simply absent from the map.
func (r *ParticipantRepository) GetManyByID(ctx context.Context, ids []int64) (map[int64]*model.Participant, error) {
	const query = `
		SELECT id, username, joined_at, reputation_offset, created_at, updated_at
		FROM participants
		WHERE id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*model.Participant, len(ids))
	for rows.Next() {
		var p model.Participant
		err := rows.Scan(
			&p.ID,
			&p.Username,
			&p.JoinedAt,
			&p.ReputationOffset,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		result[p.ID] = &p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return result, nil
}

// Exists checks if a participant with the given ID exists.
func (r *ParticipantRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM participants WHERE id = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant existence: %w", err)
	}

	return exists, nil
}
