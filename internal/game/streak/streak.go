// Package streak implements the escalating-risk ("push your luck") wager
// game. There is no join cap and no timer: every join charges the stake
// immediately and draws against a failure chance that shrinks as more players
// pile on. A failed draw ends the game on the spot; the failer's stake stays
// in the pot but they can never be drawn as winner.
package streak

import (
	"errors"
	"math/rand"
)

// Validation and resolution errors.
var (
	ErrInvalidBet = errors.New("bet must be positive")
)

// Game is one escalating-risk round. Joins keeps every successful join in
// order; a participant who rejoins appears more than once and holds that many
// chances in the winner draw.
type Game struct {
	ID      string
	ChatID  int64
	Creator int64
	Bet     int64
	Joins   []int64
	Pot     int64
}

// New validates and creates a game. The creator's own stake is the first
// join, so Pot starts at one bet.
func New(id string, chatID, creator, bet int64) (*Game, error) {
	if bet <= 0 {
		return nil, ErrInvalidBet
	}
	return &Game{
		ID:      id,
		ChatID:  chatID,
		Creator: creator,
		Bet:     bet,
		Joins:   []int64{creator},
		Pot:     bet,
	}, nil
}

// FailureChance returns the probability that a join ends the game when
// priorJoins players have already joined. Strictly decreasing in priorJoins.
func FailureChance(priorJoins int) float64 {
	return 1.0 / float64(priorJoins+2)
}

// NextFailureChance returns the failure chance the next joiner faces.
func (g *Game) NextFailureChance() float64 {
	return FailureChance(len(g.Joins))
}

// CanRejoin reports whether a returning participant may join again. A rejoin
// is allowed only after at least minOthers further joins landed since their
// last entry; this blocks farming the pot by re-entering immediately.
func (g *Game) CanRejoin(participant int64, minOthers int) bool {
	last := -1
	for i, p := range g.Joins {
		if p == participant {
			last = i
		}
	}
	if last == -1 {
		return true
	}
	return len(g.Joins)-last-1 >= minOthers
}

// DrawFailure draws the Bernoulli trial for the next join. Call before
// RecordJoin so the chance reflects the prior join count.
func (g *Game) DrawFailure() bool {
	return rand.Float64() < g.NextFailureChance()
}

// RecordJoin appends a successful charge to the join list and grows the pot.
// The failing joiner is recorded too: their stake stays in the pot.
func (g *Game) RecordJoin(participant int64) {
	g.Joins = append(g.Joins, participant)
	g.Pot += g.Bet
}

// Result is the outcome of a failed join ending the game.
type Result struct {
	Winner   int64
	Failer   int64
	Pot      int64
	Refunded bool // failer was the only participant; pot goes back to them
}

// Resolve ends the game after failer's join ended it. The winner is drawn
// uniformly over all join entries except the failer's. If nobody but the
// failer ever joined, the pot is refunded to them instead of vanishing.
func (g *Game) Resolve(failer int64) (*Result, error) {
	eligible := g.eligibleEntries(failer)
	if len(eligible) == 0 {
		return &Result{Failer: failer, Pot: g.Pot, Refunded: true}, nil
	}
	return g.ResolveWithIndex(failer, rand.Intn(len(eligible)))
}

// ResolveWithIndex resolves with a fixed index into the eligible entry list
// (for testing).
func (g *Game) ResolveWithIndex(failer int64, idx int) (*Result, error) {
	eligible := g.eligibleEntries(failer)
	if len(eligible) == 0 {
		return &Result{Failer: failer, Pot: g.Pot, Refunded: true}, nil
	}
	if idx < 0 || idx >= len(eligible) {
		return nil, errors.New("winner index out of range")
	}
	return &Result{
		Winner: eligible[idx],
		Failer: failer,
		Pot:    g.Pot,
	}, nil
}

// eligibleEntries returns the join entries that may win, excluding every
// entry of the failing joiner.
func (g *Game) eligibleEntries(failer int64) []int64 {
	eligible := make([]int64, 0, len(g.Joins))
	for _, p := range g.Joins {
		if p != failer {
			eligible = append(eligible, p)
		}
	}
	return eligible
}
