package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-lottery-bot/internal/service"
)

// AccountHandler handles balance and leaderboard commands.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	p, created, err := h.accountService.GetOrCreate(ctx, sender.ID, senderName(sender))
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to ensure account")
		return c.Reply("❌ 操作失败，请稍后重试")
	}

	balance := h.accountService.BalanceOf(p)
	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 欢迎加入！\n💰 初始余额: %d 金币\n\n"+
				"玩法:\n"+
				"/lottery <金额> [人数] - 开一场抽奖\n"+
				"/streak <金额> - 开一场连锁挑战\n"+
				"/games - 查看进行中的游戏",
			balance,
		))
	}
	return c.Reply(fmt.Sprintf("👋 欢迎回来！\n💰 当前余额: %d 金币", balance))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	p, _, err := h.accountService.GetOrCreate(ctx, sender.ID, senderName(sender))
	if err != nil {
		return c.Reply("❌ 获取余额失败")
	}

	return c.Reply(fmt.Sprintf("💰 %s 的余额: %d 金币", senderName(sender), h.accountService.BalanceOf(p)))
}

// HandleTop handles the /top command.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	top, err := h.accountService.Top(ctx, 10)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get leaderboard")
		return c.Reply("❌ 获取排行榜失败")
	}
	if len(top) == 0 {
		return c.Reply("📋 暂时没有玩家")
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var b strings.Builder
	b.WriteString("🏆 财富排行榜\n\n")
	for i, p := range top {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := p.Username
		if name == "" {
			name = fmt.Sprintf("%d", p.ID)
		}
		b.WriteString(fmt.Sprintf("%s %s - %d 金币\n", rank, name, h.accountService.BalanceOf(p)))
	}
	return c.Reply(b.String())
}

// HandleHistory handles the /history command.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	entries, err := h.accountService.History(ctx, sender.ID, 10)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to get ledger history")
		return c.Reply("❌ 获取记录失败")
	}
	if len(entries) == 0 {
		return c.Reply("📋 还没有任何记录")
	}

	var b strings.Builder
	b.WriteString("📋 最近记录\n\n")
	for _, e := range entries {
		sign := "+"
		if e.Amount < 0 {
			sign = ""
		}
		b.WriteString(fmt.Sprintf("%s %s%d  (%s)\n",
			entryLabel(e.Type), sign, e.Amount, e.CreatedAt.Format("01-02 15:04")))
	}
	return c.Reply(b.String())
}
