// Package model defines the persisted data models for the chat lottery bot.
package model

import "time"

// Participant represents a chat member's ledger account.
// The displayed balance is a deterministic base value derived from membership
// age plus the stored reputation offset; only the offset is ever mutated.
type Participant struct {
	ID               int64     `db:"id"`
	Username         string    `db:"username"`
	JoinedAt         time.Time `db:"joined_at"`
	ReputationOffset int64     `db:"reputation_offset"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// LedgerEntry records a single signed change to a participant's offset.
type LedgerEntry struct {
	ID            int64     `db:"id"`
	ParticipantID int64     `db:"participant_id"`
	Amount        int64     `db:"amount"`
	Type          string    `db:"type"`
	Description   *string   `db:"description"`
	CreatedAt     time.Time `db:"created_at"`
}

// Lottery is the persisted form of one wager round. The document is the single
// source of truth for membership; resolution deletes it.
type Lottery struct {
	ID          string     `db:"id"`
	ChatID      int64      `db:"chat_id"`
	Creator     int64      `db:"creator"`
	Bet         int64      `db:"bet"`
	PlayerLimit *int       `db:"player_limit"`
	Players     []int64    `db:"players"`
	Winner      *int64     `db:"winner"`
	StartTime   *time.Time `db:"start_time"`
	CreatedAt   time.Time  `db:"created_at"`
}

// StreakGame is the persisted form of an escalating-risk round. Joins is the
// ordered list of successful joins; the same participant may appear more than
// once. Pot accumulates every stake charged so far.
type StreakGame struct {
	ID        string    `db:"id"`
	ChatID    int64     `db:"chat_id"`
	Creator   int64     `db:"creator"`
	Bet       int64     `db:"bet"`
	Joins     []int64   `db:"joins"`
	Pot       int64     `db:"pot"`
	CreatedAt time.Time `db:"created_at"`
}

// Job statuses for the durable scheduler queue.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusFailed  = "failed"
)

// Job is a persisted scheduled action. It is created on enqueue, flipped to
// running immediately before handler invocation, deleted on success and left
// in failed state for operator inspection on handler error.
type Job struct {
	ID        string    `db:"id"`
	Type      string    `db:"type"`
	Payload   []byte    `db:"payload"`
	ExecuteAt time.Time `db:"execute_at"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// Ledger entry types for categorizing offset changes.
const (
	EntryTypeLotteryWin      = "lottery_win"      // Winner's take in a standard game
	EntryTypeLotteryLoss     = "lottery_loss"     // Loser's stake in a standard game
	EntryTypeInsurancePayout = "insurance_payout" // Receipt in an insurance game
	EntryTypeInsuranceLoss   = "insurance_loss"   // Unlucky payer's loss in an insurance game
	EntryTypeStreakStake     = "streak_stake"     // Stake charged on joining a streak game
	EntryTypeStreakWin       = "streak_win"       // Pot paid to the streak winner
	EntryTypeStreakRefund    = "streak_refund"    // Stake returned when nobody else ever joined
	EntryTypeAdminAdjust     = "admin_adjust"     // Manual operator adjustment
)
