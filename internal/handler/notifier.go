package handler

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-lottery-bot/internal/game/lottery"
	"chat-lottery-bot/internal/game/streak"
	"chat-lottery-bot/internal/service"
)

// Notifier posts game outcomes back into the chat. It implements
// service.LotteryNotifier and service.StreakNotifier. The bot instance is
// bound after construction because the services are wired before the bot
// exists; settlement never depends on a delivery succeeding.
type Notifier struct {
	accountService *service.AccountService

	mu  sync.RWMutex
	bot *tele.Bot
}

// NewNotifier creates an unbound Notifier.
func NewNotifier(accountService *service.AccountService) *Notifier {
	return &Notifier{accountService: accountService}
}

// Bind attaches the bot used for delivery.
func (n *Notifier) Bind(bot *tele.Bot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bot = bot
}

func (n *Notifier) send(chatID int64, msg string) {
	n.mu.RLock()
	bot := n.bot
	n.mu.RUnlock()

	if bot == nil {
		log.Warn().Int64("chat_id", chatID).Msg("Notifier not bound, dropping notice")
		return
	}
	if _, err := bot.Send(&tele.Chat{ID: chatID}, msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to deliver game notice")
	}
}

// LotterySettled announces a settled game.
func (n *Notifier) LotterySettled(ctx context.Context, g *lottery.Game, res *lottery.Result) {
	names, err := n.accountService.Usernames(ctx, g.Players)
	if err != nil {
		log.Debug().Err(err).Str("game_id", g.ID).Msg("Failed to resolve usernames for notice")
	}
	n.send(g.ChatID, FormatLotteryResult(g, res, names))
}

// LotteryCancelled announces a cancelled game.
func (n *Notifier) LotteryCancelled(ctx context.Context, g *lottery.Game) {
	n.send(g.ChatID, FormatLotteryCancelled(g))
}

// StreakEnded announces the end of a streak game.
func (n *Notifier) StreakEnded(ctx context.Context, g *streak.Game, res *streak.Result) {
	ids := []int64{res.Failer}
	if !res.Refunded {
		ids = append(ids, res.Winner)
	}
	names, err := n.accountService.Usernames(ctx, ids)
	if err != nil {
		log.Debug().Err(err).Str("game_id", g.ID).Msg("Failed to resolve usernames for notice")
	}
	n.send(g.ChatID, FormatStreakResult(g, res, names))
}
