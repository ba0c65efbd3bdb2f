// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"
	"time"

	"chat-lottery-bot/internal/model"
	"chat-lottery-bot/internal/repository"
)

// AccountService exposes participant balances. The displayed balance is a
// deterministic base derived from membership age plus the stored reputation
// offset; the base is recomputed on every read and never persisted.
type AccountService struct {
	participants *repository.ParticipantRepository
	ledger       *repository.LedgerRepository
	baseFloor    int64
	basePerDay   int64
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	participants *repository.ParticipantRepository,
	ledger *repository.LedgerRepository,
	baseFloor, basePerDay int64,
) *AccountService {
	return &AccountService{
		participants: participants,
		ledger:       ledger,
		baseFloor:    baseFloor,
		basePerDay:   basePerDay,
	}
}

// BaseValue computes the membership-derived base: floor plus per-day rate
// times whole days of membership. Must stay in sync with the SQL expression
// in repository.ParticipantRepository.GetTop.
func (s *AccountService) BaseValue(joinedAt, now time.Time) int64 {
	days := int64(now.Sub(joinedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return s.baseFloor + s.basePerDay*days
}

// BalanceOf computes a participant's displayed balance.
func (s *AccountService) BalanceOf(p *model.Participant) int64 {
	return s.BaseValue(p.JoinedAt, time.Now()) + p.ReputationOffset
}

// GetBalance retrieves a participant's displayed balance.
func (s *AccountService) GetBalance(ctx context.Context, id int64) (int64, error) {
	p, err := s.participants.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return s.BalanceOf(p), nil
}

// ApplyMulti applies a multi-party settlement atomically. Exposed here so
// the orchestrators depend on one Ledger collaborator for both reads and
// settlement writes.
func (s *AccountService) ApplyMulti(ctx context.Context, updates []repository.BalanceUpdate) error {
	return s.ledger.ApplyMulti(ctx, updates)
}

// GetOrCreate retrieves a participant, creating the account on first
// interaction and refreshing a changed username.
func (s *AccountService) GetOrCreate(ctx context.Context, id int64, username string) (*model.Participant, bool, error) {
	p, created, err := s.participants.GetOrCreate(ctx, id, username)
	if err != nil {
		return nil, false, err
	}

	if !created && username != "" && p.Username != username {
		if err := s.participants.UpdateUsername(ctx, id, username); err == nil {
			p.Username = username
		}
	}

	return p, created, nil
}

// Top returns the highest balances for the leaderboard.
func (s *AccountService) Top(ctx context.Context, limit int) ([]*model.Participant, error) {
	return s.participants.GetTop(ctx, limit, s.baseFloor, s.basePerDay)
}

// History returns a participant's most recent ledger entries.
func (s *AccountService) History(ctx context.Context, id int64, limit int) ([]*model.LedgerEntry, error) {
	return s.ledger.GetHistory(ctx, id, limit)
}

// Usernames resolves display names for a set of participants, falling back
// to the numeric ID when an account is missing.
func (s *AccountService) Usernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	found, err := s.participants.GetManyByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok && p.Username != "" {
			names[id] = p.Username
		} else {
			names[id] = fmt.Sprintf("%d", id)
		}
	}
	return names, nil
}

// Adjust applies a manual operator adjustment to a participant's offset.
func (s *AccountService) Adjust(ctx context.Context, id int64, amount int64, reason string) error {
	desc := reason
	return s.ledger.ApplyMulti(ctx, []repository.BalanceUpdate{
		{
			ParticipantID: id,
			Amount:        amount,
			Type:          model.EntryTypeAdminAdjust,
			Description:   &desc,
		},
	})
}
