// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-lottery-bot/internal/config"
	"chat-lottery-bot/internal/handler"
	"chat-lottery-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountHandler *handler.AccountHandler
	lotteryHandler *handler.LotteryHandler
	streakHandler  *handler.StreakHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	LotteryService *service.LotteryService
	StreakService  *service.StreakService
	Notifier       *handler.Notifier
}

// New creates a new Bot instance with the given dependencies and binds the
// outcome notifier to the created telebot.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService)
	b.lotteryHandler = handler.NewLotteryHandler(deps.AccountService, deps.LotteryService, deps.StreakService)
	b.streakHandler = handler.NewStreakHandler(deps.AccountService, deps.StreakService)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService)

	if deps.Notifier != nil {
		deps.Notifier.Bind(teleBot)
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/top", b.accountHandler.HandleTop)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)

	// Lottery handlers
	b.bot.Handle("/lottery", b.lotteryHandler.HandleCreate)
	b.bot.Handle("/join", b.lotteryHandler.HandleJoin)
	b.bot.Handle("/games", b.lotteryHandler.HandleGames)

	// Streak handlers
	b.bot.Handle("/streak", b.streakHandler.HandleCreate)
	b.bot.Handle("/push", b.streakHandler.HandlePush)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/adjust", b.adminHandler.HandleAdjust)

	// Inline join buttons
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes inline button callbacks by data prefix.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")

	switch {
	case strings.HasPrefix(data, handler.CallbackJoinLottery):
		return b.lotteryHandler.HandleJoinCallback(c)
	case strings.HasPrefix(data, handler.CallbackPushStreak):
		return b.streakHandler.HandlePushCallback(c)
	}

	log.Debug().Str("data", data).Msg("Unrecognized callback data")
	return c.Respond(&tele.CallbackResponse{})
}

// Start starts the bot polling. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
