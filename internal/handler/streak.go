package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-lottery-bot/internal/game/streak"
	"chat-lottery-bot/internal/service"
)

// StreakHandler handles the escalating-risk game commands.
type StreakHandler struct {
	accountService *service.AccountService
	streakService  *service.StreakService
}

// NewStreakHandler creates a new StreakHandler.
func NewStreakHandler(accountService *service.AccountService, streakService *service.StreakService) *StreakHandler {
	return &StreakHandler{
		accountService: accountService,
		streakService:  streakService,
	}
}

// HandleCreate handles the /streak command.
// Format: /streak <bet>. The creator's stake seeds the pot; the first failure
// draw happens on the next join.
func (h *StreakHandler) HandleCreate(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /streak <金额>\n例如: /streak 50")
	}

	bet, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ 请输入有效的加注金额")
	}

	if _, _, err := h.accountService.GetOrCreate(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ 操作失败，请稍后重试")
	}

	g, err := h.streakService.Create(ctx, chat.ID, sender.ID, bet)
	if err != nil {
		switch {
		case errors.Is(err, streak.ErrInvalidBet):
			return c.Reply("❌ 加注金额必须大于 0")
		case errors.Is(err, service.ErrInsufficientBalance):
			return c.Reply("❌ 余额不足，无法开启挑战")
		}
		log.Error().Err(err).Msg("Failed to create streak game")
		return c.Reply("❌ 创建失败，请稍后重试")
	}

	return c.Reply(FormatStreakStatus(g, nil), joinMarkup(CallbackPushStreak, g.ID))
}

// HandlePush handles the /push command.
// Format: /push <game_id>
func (h *StreakHandler) HandlePush(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /push <挑战ID>，或直接点击公告下方的按钮")
	}
	return h.push(c, args[0], false)
}

// HandlePushCallback handles the inline push button.
func (h *StreakHandler) HandlePushCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}
	data := strings.TrimPrefix(strings.TrimPrefix(callback.Data, "\f"), CallbackPushStreak)
	return h.push(c, data, true)
}

func (h *StreakHandler) push(c tele.Context, gameID string, viaCallback bool) error {
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

	out, err := h.streakService.Join(ctx, gameID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			return respond("❌ 挑战不存在或已经结束")
		case errors.Is(err, service.ErrRejoinTooSoon):
			return respond("❌ 刚加注过，等别人也加几次再来")
		case errors.Is(err, service.ErrInsufficientBalance):
			return respond("❌ 余额不足")
		case errors.Is(err, service.ErrJoinConflict):
			return respond("❌ 手慢了一步，请再试一次")
		}
		log.Error().Err(err).Str("game_id", gameID).Msg("Failed to push streak game")
		return respond("❌ 加注失败，请稍后重试")
	}

	if viaCallback {
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			log.Debug().Err(err).Msg("Failed to answer push callback")
		}
	}

	// A failed draw ends the game; the notifier announces the outcome.
	if out.Failed {
		return nil
	}

	msg := FormatStreakSurvival(out, senderName(sender))
	if viaCallback && c.Callback().Message != nil {
		if _, err := c.Bot().Edit(c.Callback().Message, msg, joinMarkup(CallbackPushStreak, gameID)); err != nil {
			log.Debug().Err(err).Msg("Failed to edit streak announcement")
		}
		return nil
	}
	return c.Reply(msg, joinMarkup(CallbackPushStreak, gameID))
}
