package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-lottery-bot/internal/service"
)

// AdminHandler handles operator commands.
type AdminHandler struct {
	accountService *service.AccountService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accountService *service.AccountService) *AdminHandler {
	return &AdminHandler{accountService: accountService}
}

// HandleAdjust handles the /adjust command.
// Format: /adjust <user_id> <amount> [reason...]. The amount may be negative.
func (h *AdminHandler) HandleAdjust(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ 用法: /adjust <用户ID> <金额> [备注]")
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ 请输入有效的用户 ID")
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount == 0 {
		return c.Reply("❌ 请输入有效的金额")
	}

	reason := fmt.Sprintf("管理员 %d 调整", sender.ID)
	if len(args) > 2 {
		reason = strings.Join(args[2:], " ")
	}

	if err := h.accountService.Adjust(ctx, targetID, amount, reason); err != nil {
		return c.Reply("❌ 操作失败，用户可能不存在")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int64("amount", amount).
		Str("reason", reason).
		Msg("Admin adjustment executed")

	balance, err := h.accountService.GetBalance(ctx, targetID)
	if err != nil {
		return c.Reply("✅ 调整成功")
	}
	return c.Reply(fmt.Sprintf(
		"✅ 调整成功\n\n👤 用户 ID: %d\n🔧 调整: %+d 金币\n💰 当前余额: %d 金币",
		targetID, amount, balance,
	))
}
