package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chat-lottery-bot/internal/game/streak"
	"chat-lottery-bot/internal/model"
	"chat-lottery-bot/internal/pkg/lock"
	"chat-lottery-bot/internal/repository"
)

// Streak orchestrator errors.
var (
	ErrRejoinTooSoon = errors.New("rejoin blocked until more players enter")
)

// StreakStore persists escalating-risk games. Implemented by
// repository.StreakRepository.
type StreakStore interface {
	Put(ctx context.Context, g *model.StreakGame) error
	Get(ctx context.Context, id string) (*model.StreakGame, error)
	UpdateJoins(ctx context.Context, id string, joins []int64, pot int64, expectedCount int) error
	Delete(ctx context.Context, id string) error
	ListByChat(ctx context.Context, chatID int64) ([]*model.StreakGame, error)
}

// StreakNotifier receives the end-of-game notice.
type StreakNotifier interface {
	StreakEnded(ctx context.Context, g *streak.Game, res *streak.Result)
}

// StreakJoinOutcome describes what one join did.
type StreakJoinOutcome struct {
	Game          *streak.Game
	FailureChance float64 // the chance this join faced
	Failed        bool
	Result        *streak.Result // set when Failed
}

// StreakService orchestrates the escalating-risk variant. Unlike the timed
// lottery there is no scheduler involvement: the game has no deadline and
// ends only when a join draw fails.
type StreakService struct {
	store     StreakStore
	ledger    Ledger
	notifier  StreakNotifier
	locks     *lock.KeyLock
	minRejoin int

	// draw runs the failure trial; replaced in tests for determinism.
	draw func(g *streak.Game) bool
}

// NewStreakService creates a new StreakService instance.
func NewStreakService(
	store StreakStore,
	ledger Ledger,
	notifier StreakNotifier,
	locks *lock.KeyLock,
	minRejoinPlayers int,
) *StreakService {
	return &StreakService{
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		locks:     locks,
		minRejoin: minRejoinPlayers,
		draw:      (*streak.Game).DrawFailure,
	}
}

// Create validates and persists a new streak game, charging the creator's
// stake up front. The creator seeds the pot without a failure draw; draws
// start with the next join.
func (s *StreakService) Create(ctx context.Context, chatID, creator, bet int64) (*streak.Game, error) {
	g, err := streak.New(uuid.NewString(), chatID, creator, bet)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetBalance(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to check creator balance: %w", err)
	}
	if balance < bet {
		return nil, ErrInsufficientBalance
	}

	if err := s.ledger.ApplyMulti(ctx, []repository.BalanceUpdate{
		stakeUpdate(creator, bet, g.ID),
	}); err != nil {
		return nil, fmt.Errorf("failed to charge creator stake: %w", err)
	}

	if err := s.store.Put(ctx, streakToModel(g)); err != nil {
		// The stake is already charged; hand it back rather than stranding it.
		refund := refundUpdate(creator, bet, g.ID)
		if refundErr := s.ledger.ApplyMulti(ctx, []repository.BalanceUpdate{refund}); refundErr != nil {
			log.Error().Err(refundErr).Str("game_id", g.ID).Msg("Failed to refund stake after store error")
		}
		return nil, fmt.Errorf("failed to store streak game %s: %w", g.ID, err)
	}

	log.Info().
		Str("game_id", g.ID).
		Int64("chat_id", chatID).
		Int64("creator", creator).
		Int64("bet", bet).
		Msg("Streak game created")

	return g, nil
}

// Join charges the participant's stake, draws the failure trial and either
// keeps the game growing or ends it on the spot. The failing joiner pays
// like everyone else and never wins; their stake stays in the pot.
func (s *StreakService) Join(ctx context.Context, gameID string, participant int64) (*StreakJoinOutcome, error) {
	var outcome *StreakJoinOutcome

	err := s.locks.WithLock("streak:"+gameID, func() error {
		m, err := s.store.Get(ctx, gameID)
		if err != nil {
			if errors.Is(err, repository.ErrStreakNotFound) {
				return ErrGameNotFound
			}
			return err
		}
		g := streakFromModel(m)

		if !g.CanRejoin(participant, s.minRejoin) {
			return ErrRejoinTooSoon
		}

		balance, err := s.ledger.GetBalance(ctx, participant)
		if err != nil {
			return fmt.Errorf("failed to check balance: %w", err)
		}
		if balance < g.Bet {
			return ErrInsufficientBalance
		}

		chance := g.NextFailureChance()

		if err := s.ledger.ApplyMulti(ctx, []repository.BalanceUpdate{
			stakeUpdate(participant, g.Bet, g.ID),
		}); err != nil {
			return fmt.Errorf("failed to charge stake: %w", err)
		}

		failed := s.draw(g)
		prev := len(g.Joins)
		g.RecordJoin(participant)

		if err := s.store.UpdateJoins(ctx, gameID, g.Joins, g.Pot, prev); err != nil {
			// The stake was charged against a state that no longer exists;
			// hand it back and let the caller retry.
			refund := refundUpdate(participant, g.Bet, g.ID)
			if refundErr := s.ledger.ApplyMulti(ctx, []repository.BalanceUpdate{refund}); refundErr != nil {
				log.Error().Err(refundErr).Str("game_id", g.ID).Msg("Failed to refund stake after join conflict")
			}
			if errors.Is(err, repository.ErrStreakConflict) {
				return ErrJoinConflict
			}
			if errors.Is(err, repository.ErrStreakNotFound) {
				return ErrGameNotFound
			}
			return err
		}

		outcome = &StreakJoinOutcome{Game: g, FailureChance: chance, Failed: failed}

		log.Info().
			Str("game_id", g.ID).
			Int64("participant", participant).
			Float64("failure_chance", chance).
			Bool("failed", failed).
			Int("joins", len(g.Joins)).
			Msg("Streak join")

		if !failed {
			return nil
		}

		res, err := g.Resolve(participant)
		if err != nil {
			return fmt.Errorf("failed to resolve streak game %s: %w", g.ID, err)
		}
		outcome.Result = res

		payout := repository.BalanceUpdate{
			ParticipantID: res.Winner,
			Amount:        res.Pot,
			Type:          model.EntryTypeStreakWin,
		}
		if res.Refunded {
			payout = refundUpdate(res.Failer, res.Pot, g.ID)
		}
		desc := fmt.Sprintf("streak %s", g.ID)
		payout.Description = &desc

		if err := s.ledger.ApplyMulti(ctx, []repository.BalanceUpdate{payout}); err != nil {
			return fmt.Errorf("streak payout for game %s failed: %w", g.ID, err)
		}

		if err := s.store.Delete(ctx, g.ID); err != nil {
			return fmt.Errorf("paid out streak game %s but failed to delete it: %w", g.ID, err)
		}

		log.Info().
			Str("game_id", g.ID).
			Int64("winner", res.Winner).
			Int64("failer", res.Failer).
			Int64("pot", res.Pot).
			Bool("refunded", res.Refunded).
			Msg("Streak game ended")

		if s.notifier != nil {
			s.notifier.StreakEnded(ctx, g, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

// ListOpen returns every running streak game in one chat.
func (s *StreakService) ListOpen(ctx context.Context, chatID int64) ([]*streak.Game, error) {
	ms, err := s.store.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	games := make([]*streak.Game, 0, len(ms))
	for _, m := range ms {
		games = append(games, streakFromModel(m))
	}
	return games, nil
}

// Status returns the current game state for rendering.
func (s *StreakService) Status(ctx context.Context, gameID string) (*streak.Game, error) {
	m, err := s.store.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, repository.ErrStreakNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return streakFromModel(m), nil
}

func stakeUpdate(participant, bet int64, gameID string) repository.BalanceUpdate {
	desc := fmt.Sprintf("streak %s", gameID)
	return repository.BalanceUpdate{
		ParticipantID: participant,
		Amount:        -bet,
		Type:          model.EntryTypeStreakStake,
		Description:   &desc,
	}
}

func refundUpdate(participant, amount int64, gameID string) repository.BalanceUpdate {
	desc := fmt.Sprintf("streak %s", gameID)
	return repository.BalanceUpdate{
		ParticipantID: participant,
		Amount:        amount,
		Type:          model.EntryTypeStreakRefund,
		Description:   &desc,
	}
}

func streakToModel(g *streak.Game) *model.StreakGame {
	return &model.StreakGame{
		ID:      g.ID,
		ChatID:  g.ChatID,
		Creator: g.Creator,
		Bet:     g.Bet,
		Joins:   g.Joins,
		Pot:     g.Pot,
	}
}

func streakFromModel(m *model.StreakGame) *streak.Game {
	return &streak.Game{
		ID:      m.ID,
		ChatID:  m.ChatID,
		Creator: m.Creator,
		Bet:     m.Bet,
		Joins:   m.Joins,
		Pot:     m.Pot,
	}
}
