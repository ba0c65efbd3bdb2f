// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-lottery-bot/internal/game/lottery"
	"chat-lottery-bot/internal/service"
)

// Callback data prefixes for inline buttons.
const (
	CallbackJoinLottery = "ljoin_"
	CallbackPushStreak  = "push_"
)

// LotteryHandler handles the timed wager game commands.
type LotteryHandler struct {
	accountService *service.AccountService
	lotteryService *service.LotteryService
	streakService  *service.StreakService
}

// NewLotteryHandler creates a new LotteryHandler.
func NewLotteryHandler(
	accountService *service.AccountService,
	lotteryService *service.LotteryService,
	streakService *service.StreakService,
) *LotteryHandler {
	return &LotteryHandler{
		accountService: accountService,
		lotteryService: lotteryService,
		streakService:  streakService,
	}
}

// senderName returns the best display name for a Telegram user.
func senderName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}

// joinMarkup builds the inline join button for a game announcement.
func joinMarkup(prefix, gameID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	btn := markup.Data("🙋 参与", prefix+gameID)
	markup.Inline(markup.Row(btn))
	return markup
}

// HandleCreate handles the /lottery command.
// Format: /lottery <bet> [limit]. A negative bet opens an insurance game and
// requires a limit.
func (h *LotteryHandler) HandleCreate(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /lottery <金额> [人数上限]\n例如: /lottery 100 或 /lottery -100 4")
	}

	bet, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ 请输入有效的下注金额")
	}

	playerLimit := 0
	if len(args) >= 2 {
		playerLimit, err = strconv.Atoi(args[1])
		if err != nil || playerLimit < 0 {
			return c.Reply("❌ 请输入有效的人数上限")
		}
	}

	if _, _, err := h.accountService.GetOrCreate(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ 操作失败，请稍后重试")
	}

	g, err := h.lotteryService.Create(ctx, chat.ID, sender.ID, bet, playerLimit)
	if err != nil {
		switch {
		case errors.Is(err, lottery.ErrZeroBet):
			return c.Reply("❌ 下注金额不能为 0")
		case errors.Is(err, lottery.ErrPlayerLimitRequired):
			return c.Reply("❌ 保险抽奖必须指定人数上限\n例如: /lottery -100 4")
		case errors.Is(err, lottery.ErrPlayerLimitTooSmall):
			return c.Reply("❌ 人数上限至少为 2")
		case errors.Is(err, service.ErrInsufficientBalance):
			return c.Reply("❌ 余额不足，无法开启这场抽奖")
		}
		log.Error().Err(err).Msg("Failed to create lottery")
		return c.Reply("❌ 创建失败，请稍后重试")
	}

	st, err := h.lotteryService.Status(ctx, g.ID)
	if err != nil {
		return c.Reply("❌ 获取状态失败")
	}

	names, _ := h.accountService.Usernames(ctx, g.Players)
	return c.Reply(FormatLotteryStatus(st, names), joinMarkup(CallbackJoinLottery, g.ID))
}

// HandleJoin handles the /join command.
// Format: /join <game_id>
func (h *LotteryHandler) HandleJoin(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /join <抽奖ID>，或直接点击公告下方的按钮")
	}
	return h.join(c, args[0], false)
}

// HandleJoinCallback handles the inline join button.
func (h *LotteryHandler) HandleJoinCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}
	data := strings.TrimPrefix(strings.TrimPrefix(callback.Data, "\f"), CallbackJoinLottery)
	return h.join(c, data, true)
}

// join runs the shared join flow. Callback joins answer via a toast, command
// joins via a reply.
func (h *LotteryHandler) join(c tele.Context, gameID string, viaCallback bool) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	respond := func(text string) error {
		if viaCallback {
			return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
		}
		return c.Reply(text)
	}

	if _, _, err := h.accountService.GetOrCreate(ctx, sender.ID, senderName(sender)); err != nil {
		return respond("❌ 操作失败，请稍后重试")
	}

	g, resolved, err := h.lotteryService.Join(ctx, gameID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			return respond("❌ 抽奖不存在或已经结束")
		case errors.Is(err, service.ErrAlreadyJoined):
			return respond("❌ 你已经参与了这场抽奖")
		case errors.Is(err, service.ErrInsufficientBalance):
			return respond("❌ 余额不足")
		case errors.Is(err, service.ErrGameFull):
			return respond("❌ 人数已满")
		case errors.Is(err, service.ErrJoinConflict):
			return respond("❌ 手慢了一步，请再试一次")
		}
		log.Error().Err(err).Str("game_id", gameID).Msg("Failed to join lottery")
		return respond("❌ 参与失败，请稍后重试")
	}

	if viaCallback {
		if err := c.Respond(&tele.CallbackResponse{Text: "✅ 参与成功"}); err != nil {
			log.Debug().Err(err).Msg("Failed to answer join callback")
		}
	}

	// Settlement of a capped game is announced by the notifier.
	if resolved {
		return nil
	}

	st, err := h.lotteryService.Status(ctx, gameID)
	if err != nil {
		return nil
	}
	names, _ := h.accountService.Usernames(ctx, g.Players)
	msg := FormatLotteryStatus(st, names)

	if viaCallback && c.Callback().Message != nil {
		if _, err := c.Bot().Edit(c.Callback().Message, msg, joinMarkup(CallbackJoinLottery, gameID)); err != nil {
			log.Debug().Err(err).Msg("Failed to edit lottery announcement")
		}
		return nil
	}
	return c.Reply(msg, joinMarkup(CallbackJoinLottery, gameID))
}

// HandleGames handles the /games command, listing every open game in the chat.
func (h *LotteryHandler) HandleGames(c tele.Context) error {
	ctx := context.Background()
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	lotteries, err := h.lotteryService.ListOpen(ctx, chat.ID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to list lotteries")
		return c.Reply("❌ 获取游戏列表失败")
	}
	streaks, err := h.streakService.ListOpen(ctx, chat.ID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to list streak games")
		return c.Reply("❌ 获取游戏列表失败")
	}

	if len(lotteries) == 0 && len(streaks) == 0 {
		return c.Reply("😴 当前没有进行中的游戏\n用 /lottery 或 /streak 开一局吧")
	}

	var parts []string
	for _, st := range lotteries {
		names, _ := h.accountService.Usernames(ctx, st.Game.Players)
		parts = append(parts, fmt.Sprintf("ID: %s\n%s", st.Game.ID, FormatLotteryStatus(st, names)))
	}
	for _, g := range streaks {
		parts = append(parts, fmt.Sprintf("ID: %s\n%s", g.ID, FormatStreakStatus(g, nil)))
	}

	return c.Reply(strings.Join(parts, "\n\n"))
}
