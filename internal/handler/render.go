package handler

import (
	"fmt"
	"strings"
	"time"

	"chat-lottery-bot/internal/game/lottery"
	"chat-lottery-bot/internal/game/streak"
	"chat-lottery-bot/internal/service"
)

// displayName picks a username from the lookup map, falling back to the ID.
func displayName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("%d", id)
}

// formatRemaining renders a countdown as 分/秒.
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "已截止"
	}
	secs := int(d.Seconds() + 0.5)
	if secs < 60 {
		return fmt.Sprintf("%d 秒", secs)
	}
	return fmt.Sprintf("%d 分 %d 秒", secs/60, secs%60)
}

// FormatLotteryStatus renders the announcement / status message for one game.
func FormatLotteryStatus(st *service.LotteryStatus, names map[int64]string) string {
	g := st.Game

	var b strings.Builder
	if g.IsNegative() {
		b.WriteString("🛡 保险抽奖\n")
		b.WriteString(fmt.Sprintf("💸 触发金额: %d 金币（买入 %d）\n", -g.Bet, st.BuyIn))
	} else {
		b.WriteString("🎰 欢乐抽奖\n")
		b.WriteString(fmt.Sprintf("💵 下注金额: %d 金币\n", g.Bet))
	}

	b.WriteString(fmt.Sprintf("🏆 当前奖池: %d 金币\n", st.PotSize))

	if g.PlayerLimit > 0 {
		b.WriteString(fmt.Sprintf("👥 玩家 (%d/%d): ", len(g.Players), g.PlayerLimit))
	} else {
		b.WriteString(fmt.Sprintf("👥 玩家 (%d): ", len(g.Players)))
	}
	parts := make([]string, 0, len(g.Players))
	for _, id := range g.Players {
		parts = append(parts, displayName(names, id))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("⏰ 剩余时间: %s", formatRemaining(st.TimeRemaining)))
	return b.String()
}

// FormatLotteryResult renders the settlement notice.
func FormatLotteryResult(g *lottery.Game, res *lottery.Result, names map[int64]string) string {
	var b strings.Builder
	if res.IsNegative {
		b.WriteString("🛡 保险抽奖结束！\n")
		b.WriteString(fmt.Sprintf("💥 倒霉蛋: %s，赔付 %d 金币\n", displayName(names, res.Winner), -g.Bet*int64(len(g.Players)-1)))
		b.WriteString(fmt.Sprintf("🎉 其余 %d 人各获得 %d 金币", len(g.Players)-1, -g.Bet))
	} else {
		b.WriteString("🎰 抽奖结束！\n")
		b.WriteString(fmt.Sprintf("🎊 中奖者: %s\n", displayName(names, res.Winner)))
		b.WriteString(fmt.Sprintf("💰 赢得 %d 金币", g.Bet*int64(len(g.Players)-1)))
	}
	return b.String()
}

// FormatLotteryCancelled renders the not-enough-players notice.
func FormatLotteryCancelled(g *lottery.Game) string {
	return "😴 抽奖取消：报名时间结束，没有其他玩家加入，未扣除任何金币"
}

// FormatStreakStatus renders a streak game's standing state.
func FormatStreakStatus(g *streak.Game, names map[int64]string) string {
	var b strings.Builder
	b.WriteString("🔥 连锁挑战进行中\n")
	b.WriteString(fmt.Sprintf("💵 每次加注: %d 金币\n", g.Bet))
	b.WriteString(fmt.Sprintf("🏆 当前奖池: %d 金币（%d 次加注）\n", g.Pot, len(g.Joins)))
	b.WriteString(fmt.Sprintf("🎲 下一位失败概率: %.1f%%", g.NextFailureChance()*100))
	return b.String()
}

// FormatStreakSurvival renders a successful join.
func FormatStreakSurvival(out *service.StreakJoinOutcome, name string) string {
	g := out.Game
	var b strings.Builder
	b.WriteString(fmt.Sprintf("😅 %s 躲过了 %.1f%% 的失败概率！\n", name, out.FailureChance*100))
	b.WriteString(fmt.Sprintf("🏆 奖池涨到 %d 金币\n", g.Pot))
	b.WriteString(fmt.Sprintf("🎲 下一位失败概率: %.1f%%", g.NextFailureChance()*100))
	return b.String()
}

// FormatStreakResult renders the end-of-game notice.
func FormatStreakResult(g *streak.Game, res *streak.Result, names map[int64]string) string {
	if res.Refunded {
		return fmt.Sprintf("💨 %s 引爆了挑战，但没有其他玩家，奖池 %d 金币原路退回",
			displayName(names, res.Failer), res.Pot)
	}
	var b strings.Builder
	b.WriteString("💥 连锁挑战结束！\n")
	b.WriteString(fmt.Sprintf("😵 %s 触发失败，金币留在奖池\n", displayName(names, res.Failer)))
	b.WriteString(fmt.Sprintf("🎊 %s 抽中全部奖池 %d 金币！", displayName(names, res.Winner), res.Pot))
	return b.String()
}

// entryTypeLabels maps ledger entry types to display labels for /history.
var entryTypeLabels = map[string]string{
	"lottery_win":      "🎰 抽奖获胜",
	"lottery_loss":     "🎰 抽奖失利",
	"insurance_payout": "🛡 保险赔付",
	"insurance_loss":   "🛡 保险触发",
	"streak_stake":     "🔥 连锁加注",
	"streak_win":       "🔥 连锁奖池",
	"streak_refund":    "↩️ 退款",
	"admin_adjust":     "🔧 管理员调整",
}

func entryLabel(entryType string) string {
	if label, ok := entryTypeLabels[entryType]; ok {
		return label
	}
	return entryType
}
