// Package main is the entry point for the chat lottery bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chat-lottery-bot/internal/bot"
	"chat-lottery-bot/internal/config"
	"chat-lottery-bot/internal/handler"
	"chat-lottery-bot/internal/pkg/db"
	"chat-lottery-bot/internal/pkg/lock"
	"chat-lottery-bot/internal/repository"
	"chat-lottery-bot/internal/scheduler"
	"chat-lottery-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	participantRepo := repository.NewParticipantRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	lotteryRepo := repository.NewLotteryRepository(dbPool.Pool)
	streakRepo := repository.NewStreakRepository(dbPool.Pool)
	jobRepo := repository.NewJobRepository(dbPool.Pool)

	// Initialize the scheduler for the configured mode. Queue mode survives
	// restarts on its own; timer mode leans on the recovery scan below.
	var sched scheduler.Scheduler
	switch cfg.Lottery.SchedulerMode {
	case config.SchedulerModeTimer:
		sched = scheduler.NewTimer()
	default:
		sched = scheduler.NewQueue(jobRepo, cfg.Lottery.PollInterval)
	}
	log.Info().Str("mode", cfg.Lottery.SchedulerMode).Msg("Scheduler initialized")

	// Initialize services
	accountService := service.NewAccountService(
		participantRepo,
		ledgerRepo,
		cfg.Ledger.BaseFloor,
		cfg.Ledger.BasePerDay,
	)

	notifier := handler.NewNotifier(accountService)
	gameLocks := lock.NewKeyLock()

	lotteryService := service.NewLotteryService(
		lotteryRepo,
		accountService,
		sched,
		notifier,
		gameLocks,
		cfg.Lottery.JoinWindow,
	)

	streakService := service.NewStreakService(
		streakRepo,
		accountService,
		notifier,
		gameLocks,
		cfg.Streak.MinRejoinPlayers,
	)

	if err := lotteryService.RegisterJobs(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register scheduler jobs")
	}

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		LotteryService: lotteryService,
		StreakService:  streakService,
		Notifier:       notifier,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Re-drive games whose join window elapsed while no process was running,
	// then start dispatching new jobs.
	if err := lotteryService.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup recovery scan failed")
	}
	sched.Start()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	sched.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: participants
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS participants (
			id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reputation_offset BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: participants table created")

	// Migration 2: ledger entries
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_participant_time ON ledger_entries(participant_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: ledger_entries table created")

	// Migration 3: lotteries
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lotteries (
			id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			creator BIGINT NOT NULL,
			bet BIGINT NOT NULL,
			player_limit INT,
			players BIGINT[] NOT NULL DEFAULT '{}',
			winner BIGINT,
			start_time TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_lotteries_chat ON lotteries(chat_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: lotteries table created")

	// Migration 4: streak games
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS streak_games (
			id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			creator BIGINT NOT NULL,
			bet BIGINT NOT NULL,
			joins BIGINT[] NOT NULL DEFAULT '{}',
			pot BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_streak_games_chat ON streak_games(chat_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: streak_games table created")

	// Migration 5: scheduler jobs
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type VARCHAR(100) NOT NULL,
			payload BYTEA,
			execute_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status_execute ON jobs(status, execute_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: jobs table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
