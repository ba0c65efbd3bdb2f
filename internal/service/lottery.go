package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chat-lottery-bot/internal/game/lottery"
	"chat-lottery-bot/internal/model"
	"chat-lottery-bot/internal/pkg/lock"
	"chat-lottery-bot/internal/repository"
	"chat-lottery-bot/internal/scheduler"
)

// JobTypeResolveLottery is the scheduled action that closes a join window.
const JobTypeResolveLottery = "lottery_resolve"

// Orchestrator errors, in join validation order: membership first, then
// balance, then capacity.
var (
	ErrGameNotFound        = errors.New("game not found or already resolved")
	ErrAlreadyJoined       = errors.New("already joined this game")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrGameFull            = errors.New("game is full")
	ErrJoinConflict        = errors.New("join conflicted with a concurrent update, try again")
)

// GameStore persists lottery documents. Implemented by
// repository.LotteryRepository.
type GameStore interface {
	Put(ctx context.Context, l *model.Lottery) error
	Get(ctx context.Context, id string) (*model.Lottery, error)
	UpdatePlayers(ctx context.Context, id string, players []int64, expectedCount int) error
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*model.Lottery, error)
}

// Ledger reads balances and applies settlements. Implemented by
// AccountService.
type Ledger interface {
	GetBalance(ctx context.Context, participantID int64) (int64, error)
	ApplyMulti(ctx context.Context, updates []repository.BalanceUpdate) error
}

// LotteryNotifier receives the observable outcomes of scheduled resolution.
// The bot layer implements it; settlement never depends on delivery.
type LotteryNotifier interface {
	LotterySettled(ctx context.Context, g *lottery.Game, res *lottery.Result)
	LotteryCancelled(ctx context.Context, g *lottery.Game)
}

// LotteryStatus is the render data for a game's status message.
type LotteryStatus struct {
	Game          *lottery.Game
	BuyIn         int64
	PotSize       int64
	TimeRemaining time.Duration
}

type resolvePayload struct {
	GameID string `json:"game_id"`
}

// LotteryService orchestrates the wager game lifecycle: creation validation,
// join validation, scheduled resolution, atomic settlement and cleanup. The
// store is the single source of truth for membership; process memory holds
// nothing correctness-critical.
type LotteryService struct {
	store    GameStore
	ledger   Ledger
	sched    scheduler.Scheduler
	notifier LotteryNotifier
	locks    *lock.KeyLock
	window   time.Duration
}

// NewLotteryService creates a new LotteryService instance.
func NewLotteryService(
	store GameStore,
	ledger Ledger,
	sched scheduler.Scheduler,
	notifier LotteryNotifier,
	locks *lock.KeyLock,
	joinWindow time.Duration,
) *LotteryService {
	return &LotteryService{
		store:    store,
		ledger:   ledger,
		sched:    sched,
		notifier: notifier,
		locks:    locks,
		window:   joinWindow,
	}
}

// RegisterJobs binds the resolution handler. Must run before the scheduler
// starts.
func (s *LotteryService) RegisterJobs() error {
	return s.sched.Register(JobTypeResolveLottery, s.handleResolveJob)
}

func (s *LotteryService) handleResolveJob(ctx context.Context, payload []byte) error {
	var p resolvePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad resolve payload: %w", err)
	}
	return s.Resolve(ctx, p.GameID)
}

// Create validates and persists a new game, opens its join window and
// schedules resolution. Store and scheduler errors surface to the caller
// unretried.
func (s *LotteryService) Create(ctx context.Context, chatID, creator, bet int64, playerLimit int) (*lottery.Game, error) {
	g, err := lottery.New(uuid.NewString(), chatID, creator, bet, playerLimit)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetBalance(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to check creator balance: %w", err)
	}
	if balance < g.BuyIn() {
		return nil, ErrInsufficientBalance
	}

	g.Start(time.Now())

	if err := s.store.Put(ctx, gameToModel(g)); err != nil {
		return nil, fmt.Errorf("failed to store game %s: %w", g.ID, err)
	}

	if err := s.sched.Enqueue(ctx, JobTypeResolveLottery, resolvePayload{GameID: g.ID}, s.window); err != nil {
		// The game stays in the store; the startup recovery scan is the
		// fallback guarantee of eventual resolution.
		return nil, fmt.Errorf("failed to schedule resolution for game %s: %w", g.ID, err)
	}

	log.Info().
		Str("game_id", g.ID).
		Int64("chat_id", chatID).
		Int64("creator", creator).
		Int64("bet", bet).
		Int("player_limit", playerLimit).
		Msg("Lottery created")

	return g, nil
}

// Join validates and records one participant joining. Checks fail fast in
// fixed order: membership, balance, capacity. The write is conditional on
// the player count read here; a concurrent join surfaces as ErrJoinConflict.
// Reaching the cap resolves the game immediately.
func (s *LotteryService) Join(ctx context.Context, gameID string, participant int64) (*lottery.Game, bool, error) {
	var g *lottery.Game
	var resolved bool

	err := s.locks.WithLock("lottery:"+gameID, func() error {
		m, err := s.store.Get(ctx, gameID)
		if err != nil {
			if errors.Is(err, repository.ErrLotteryNotFound) {
				return ErrGameNotFound
			}
			return err
		}
		g = gameFromModel(m)

		if g.HasPlayer(participant) {
			return ErrAlreadyJoined
		}

		balance, err := s.ledger.GetBalance(ctx, participant)
		if err != nil {
			return fmt.Errorf("failed to check balance: %w", err)
		}
		if balance < g.BuyIn() {
			return ErrInsufficientBalance
		}

		if !g.CanAddPlayers() {
			return ErrGameFull
		}

		prev := len(g.Players)
		g.AddPlayer(participant)

		if err := s.store.UpdatePlayers(ctx, gameID, g.Players, prev); err != nil {
			if errors.Is(err, repository.ErrPlayersConflict) {
				return ErrJoinConflict
			}
			if errors.Is(err, repository.ErrLotteryNotFound) {
				return ErrGameNotFound
			}
			return err
		}

		log.Info().
			Str("game_id", gameID).
			Int64("participant", participant).
			Int("players", len(g.Players)).
			Msg("Participant joined lottery")

		if g.ShouldFinish() {
			resolved = true
			return s.settle(ctx, g)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return g, resolved, nil
}

// Resolve closes a game by ID. A missing game means it already resolved
// (early finish or a recovery pass beat the job): that is a no-op, not an
// error.
func (s *LotteryService) Resolve(ctx context.Context, gameID string) error {
	return s.locks.WithLock("lottery:"+gameID, func() error {
		m, err := s.store.Get(ctx, gameID)
		if err != nil {
			if errors.Is(err, repository.ErrLotteryNotFound) {
				log.Debug().Str("game_id", gameID).Msg("Resolve fired for missing game, skipping")
				return nil
			}
			return err
		}
		return s.settle(ctx, gameFromModel(m))
	})
}

// settle performs the terminal transition. Caller holds the game lock.
// Settlement is one atomic multi-party ledger update or nothing: a ledger
// failure leaves balances untouched and the game stored for a manual
// re-drive.
func (s *LotteryService) settle(ctx context.Context, g *lottery.Game) error {
	if !g.CanFinish() {
		if err := s.store.Delete(ctx, g.ID); err != nil {
			return fmt.Errorf("failed to delete cancelled game %s: %w", g.ID, err)
		}
		log.Info().Str("game_id", g.ID).Msg("Lottery cancelled, not enough players")
		if s.notifier != nil {
			s.notifier.LotteryCancelled(ctx, g)
		}
		return nil
	}

	res, err := g.Resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve game %s: %w", g.ID, err)
	}

	if err := s.ledger.ApplyMulti(ctx, settlementUpdates(g, res)); err != nil {
		return fmt.Errorf("settlement for game %s failed, no currency moved: %w", g.ID, err)
	}

	if err := s.store.Delete(ctx, g.ID); err != nil {
		// Settlement is already committed; surface the error so the job is
		// flagged, but an operator re-drive must NOT re-apply it.
		return fmt.Errorf("settled game %s but failed to delete it: %w", g.ID, err)
	}

	log.Info().
		Str("game_id", g.ID).
		Int64("winner", res.Winner).
		Bool("insurance", res.IsNegative).
		Int("players", len(g.Players)).
		Msg("Lottery settled")

	if s.notifier != nil {
		s.notifier.LotterySettled(ctx, g, res)
	}
	return nil
}

// settlementUpdates maps a resolution onto ledger updates.
func settlementUpdates(g *lottery.Game, res *lottery.Result) []repository.BalanceUpdate {
	desc := fmt.Sprintf("lottery %s", g.ID)
	updates := make([]repository.BalanceUpdate, 0, len(res.Payouts))
	for _, p := range res.Payouts {
		entryType := model.EntryTypeLotteryLoss
		switch {
		case res.IsNegative && p.Participant == res.Winner:
			entryType = model.EntryTypeInsuranceLoss
		case res.IsNegative:
			entryType = model.EntryTypeInsurancePayout
		case p.Participant == res.Winner:
			entryType = model.EntryTypeLotteryWin
		}
		updates = append(updates, repository.BalanceUpdate{
			ParticipantID: p.Participant,
			Amount:        p.Amount,
			Type:          entryType,
			Description:   &desc,
		})
	}
	return updates
}

// Recover re-drives every stored game whose join window has already elapsed.
// Runs at process startup before traffic is accepted; it closes the gap
// where a process died between storing a game and its job firing. A job that
// later fires for a recovered game finds nothing and no-ops.
func (s *LotteryService) Recover(ctx context.Context) error {
	games, err := s.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("recovery scan failed: %w", err)
	}

	now := time.Now()
	for _, m := range games {
		g := gameFromModel(m)
		if !g.Started() || now.Before(g.Deadline(s.window)) {
			continue
		}
		log.Info().
			Str("game_id", g.ID).
			Time("deadline", g.Deadline(s.window)).
			Msg("Recovering elapsed lottery")
		if err := s.Resolve(ctx, g.ID); err != nil {
			// Keep scanning; one stuck game must not block the rest.
			log.Error().Err(err).Str("game_id", g.ID).Msg("Failed to recover lottery")
		}
	}

	return nil
}

// Status returns the render data for a game's status message.
func (s *LotteryService) Status(ctx context.Context, gameID string) (*LotteryStatus, error) {
	m, err := s.store.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, repository.ErrLotteryNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	g := gameFromModel(m)

	return &LotteryStatus{
		Game:          g,
		BuyIn:         g.BuyIn(),
		PotSize:       g.PotSize(),
		TimeRemaining: g.TimeRemaining(time.Now(), s.window),
	}, nil
}

// ListOpen returns the status of every stored game in one chat, oldest first.
func (s *LotteryService) ListOpen(ctx context.Context, chatID int64) ([]*LotteryStatus, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var statuses []*LotteryStatus
	for _, m := range all {
		if m.ChatID != chatID {
			continue
		}
		g := gameFromModel(m)
		statuses = append(statuses, &LotteryStatus{
			Game:          g,
			BuyIn:         g.BuyIn(),
			PotSize:       g.PotSize(),
			TimeRemaining: g.TimeRemaining(now, s.window),
		})
	}
	return statuses, nil
}

// JoinWindow returns the configured join window duration.
func (s *LotteryService) JoinWindow() time.Duration {
	return s.window
}

func gameToModel(g *lottery.Game) *model.Lottery {
	m := &model.Lottery{
		ID:      g.ID,
		ChatID:  g.ChatID,
		Creator: g.Creator,
		Bet:     g.Bet,
		Players: g.Players,
	}
	if g.PlayerLimit != 0 {
		limit := g.PlayerLimit
		m.PlayerLimit = &limit
	}
	if !g.StartTime.IsZero() {
		start := g.StartTime
		m.StartTime = &start
	}
	return m
}

func gameFromModel(m *model.Lottery) *lottery.Game {
	g := &lottery.Game{
		ID:      m.ID,
		ChatID:  m.ChatID,
		Creator: m.Creator,
		Bet:     m.Bet,
		Players: m.Players,
	}
	if m.PlayerLimit != nil {
		g.PlayerLimit = *m.PlayerLimit
	}
	if m.StartTime != nil {
		g.StartTime = *m.StartTime
	}
	return g
}
