// Package lottery implements the wager game entity and its variant math.
// A positive bet is a standard game (everyone pays the winner); a negative bet
// is an insurance game (the unlucky draw pays everyone else). The entity is
// pure: persistence and settlement live in the service layer.
package lottery

import (
	"errors"
	"math/rand"
	"time"
)

// Validation errors for game creation.
var (
	ErrZeroBet             = errors.New("bet must not be zero")
	ErrPlayerLimitRequired = errors.New("negative bet requires a player limit")
	ErrPlayerLimitTooSmall = errors.New("player limit must be at least 2")
	ErrNotEnoughPlayers    = errors.New("game needs more than one player to resolve")
)

// Game is one wager round. Players keeps insertion order; that order carries
// no meaning beyond providing a stable array for the winner draw and display.
type Game struct {
	ID          string
	ChatID      int64
	Creator     int64
	Bet         int64
	PlayerLimit int // 0 means unlimited
	Players     []int64
	StartTime   time.Time // zero value means not started
}

// New validates and creates a game. The creator is always the first player.
func New(id string, chatID, creator, bet int64, playerLimit int) (*Game, error) {
	if bet == 0 {
		return nil, ErrZeroBet
	}
	if bet < 0 && playerLimit == 0 {
		return nil, ErrPlayerLimitRequired
	}
	if playerLimit != 0 && playerLimit < 2 {
		return nil, ErrPlayerLimitTooSmall
	}

	return &Game{
		ID:          id,
		ChatID:      chatID,
		Creator:     creator,
		Bet:         bet,
		PlayerLimit: playerLimit,
		Players:     []int64{creator},
	}, nil
}

// Start sets the start time if unset and returns it. Calling Start on an
// already started game returns the original time unchanged.
func (g *Game) Start(now time.Time) time.Time {
	if g.StartTime.IsZero() {
		g.StartTime = now
	}
	return g.StartTime
}

// Started reports whether the join window has opened.
func (g *Game) Started() bool {
	return !g.StartTime.IsZero()
}

// IsNegative reports whether this is an insurance game.
func (g *Game) IsNegative() bool {
	return g.Bet < 0
}

// HasPlayer reports whether the participant already joined.
func (g *Game) HasPlayer(id int64) bool {
	for _, p := range g.Players {
		if p == id {
			return true
		}
	}
	return false
}

// CanAddPlayers reports whether the game has room for another player.
func (g *Game) CanAddPlayers() bool {
	return g.PlayerLimit == 0 || len(g.Players) < g.PlayerLimit
}

// AddPlayer appends a participant. Callers must check HasPlayer and
// CanAddPlayers first; adding an existing member is a silent no-op here.
func (g *Game) AddPlayer(id int64) {
	if g.HasPlayer(id) {
		return
	}
	g.Players = append(g.Players, id)
}

// CanFinish reports whether the game has enough players to resolve. A game
// where only the creator joined cannot resolve; no currency moves.
func (g *Game) CanFinish() bool {
	return len(g.Players) > 1
}

// ShouldFinish reports whether a capped game has filled up and should resolve
// immediately instead of waiting for the timer.
func (g *Game) ShouldFinish() bool {
	return g.PlayerLimit != 0 && len(g.Players) == g.PlayerLimit
}

// BuyIn returns the minimum balance a joining participant must hold.
// For insurance games this is the maximum possible loss if drawn as payer.
func (g *Game) BuyIn() int64 {
	if g.Bet > 0 {
		return g.Bet
	}
	return -g.Bet * int64(g.PlayerLimit-1)
}

// PotSize returns the amount the winner stands to receive, for display. The
// standard-game pot counts the winner's own stake, so it exceeds the net
// transfer by one bet.
func (g *Game) PotSize() int64 {
	n := g.PlayerLimit
	if n == 0 {
		n = len(g.Players)
	}
	adj := 0
	if g.Bet > 0 {
		adj = 1
	}
	return abs(g.Bet) * int64(n+adj-1)
}

// Deadline returns the instant the join window closes.
func (g *Game) Deadline(window time.Duration) time.Time {
	return g.StartTime.Add(window)
}

// TimeRemaining returns how long the join window stays open, floored at zero.
func (g *Game) TimeRemaining(now time.Time, window time.Duration) time.Duration {
	remaining := g.Deadline(window).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Payout is one participant's signed settlement amount.
type Payout struct {
	Participant int64
	Amount      int64
}

// Result is the outcome of a resolved game. Payout amounts always sum to zero.
type Result struct {
	Winner     int64
	Payouts    []Payout
	IsNegative bool
}

// Resolve draws the winner uniformly at random over the player slice and
// computes the settlement. Fails if the game cannot finish.
func (g *Game) Resolve() (*Result, error) {
	if !g.CanFinish() {
		return nil, ErrNotEnoughPlayers
	}
	return g.ResolveWithIndex(rand.Intn(len(g.Players)))
}

// ResolveWithIndex resolves with a fixed winner index (for testing).
//
// One formula covers both polarities: the winner moves bet*(n-1), everyone
// else moves -bet. Positive bet pays the winner; negative bet makes the
// "winner" the unlucky payer and everyone else a receiver.
func (g *Game) ResolveWithIndex(winnerIdx int) (*Result, error) {
	if !g.CanFinish() {
		return nil, ErrNotEnoughPlayers
	}
	if winnerIdx < 0 || winnerIdx >= len(g.Players) {
		return nil, errors.New("winner index out of range")
	}

	n := int64(len(g.Players))
	winner := g.Players[winnerIdx]

	payouts := make([]Payout, 0, n)
	for _, p := range g.Players {
		amount := -g.Bet
		if p == winner {
			amount = g.Bet * (n - 1)
		}
		payouts = append(payouts, Payout{Participant: p, Amount: amount})
	}

	return &Result{
		Winner:     winner,
		Payouts:    payouts,
		IsNegative: g.Bet < 0,
	}, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
