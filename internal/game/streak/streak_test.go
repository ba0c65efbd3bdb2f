package streak

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew_Validation(t *testing.T) {
	g, err := New("s1", 100, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, g.Joins, "creator's stake is the first join")
	assert.Equal(t, int64(50), g.Pot)

	_, err = New("s2", 100, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidBet)

	_, err = New("s3", 100, 1, -10)
	assert.ErrorIs(t, err, ErrInvalidBet)
}

// TestFailureChanceStrictlyDecreasing is the core safety property: every
// additional player makes the next join strictly safer.
func TestFailureChanceStrictlyDecreasing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10_000).Draw(t, "n")

		cur := FailureChance(n)
		next := FailureChance(n + 1)

		if next >= cur {
			t.Fatalf("FailureChance(%d)=%v not below FailureChance(%d)=%v", n+1, next, n, cur)
		}
		if cur <= 0 || cur > 1 {
			t.Fatalf("FailureChance(%d)=%v outside (0,1]", n, cur)
		}
	})
}

func TestRecordJoin_PotAccounting(t *testing.T) {
	g, err := New("s1", 100, 1, 25)
	require.NoError(t, err)

	g.RecordJoin(2)
	g.RecordJoin(3)
	g.RecordJoin(2)

	assert.Equal(t, []int64{1, 2, 3, 2}, g.Joins)
	assert.Equal(t, int64(25)*int64(len(g.Joins)), g.Pot, "pot must equal bet times join count")
}

func TestCanRejoin(t *testing.T) {
	g, err := New("s1", 100, 1, 25)
	require.NoError(t, err)
	g.RecordJoin(2)

	// Player 2 just joined; nobody joined after them.
	assert.False(t, g.CanRejoin(2, 2))
	// A fresh player may always join.
	assert.True(t, g.CanRejoin(3, 2))

	g.RecordJoin(3)
	assert.False(t, g.CanRejoin(2, 2), "only one join landed since player 2")

	g.RecordJoin(4)
	assert.True(t, g.CanRejoin(2, 2), "two joins landed since player 2")
}

func TestResolve_ExcludesFailer(t *testing.T) {
	g, err := New("s1", 100, 1, 10)
	require.NoError(t, err)
	g.RecordJoin(2)
	g.RecordJoin(3)
	g.RecordJoin(2) // rejoin: two chances for player 2
	g.RecordJoin(4) // player 4's join failed the draw

	// Eligible entries: 1, 2, 3, 2 - the failer never wins.
	for idx := 0; idx < 4; idx++ {
		res, err := g.ResolveWithIndex(4, idx)
		require.NoError(t, err)
		assert.NotEqual(t, int64(4), res.Winner)
		assert.Equal(t, int64(4), res.Failer)
		assert.Equal(t, g.Pot, res.Pot)
		assert.False(t, res.Refunded)
	}

	_, err = g.ResolveWithIndex(4, 4)
	assert.Error(t, err)
}

func TestResolve_RefundWhenAlone(t *testing.T) {
	// Creator's very first join fails: nobody else ever staked, so the pot
	// goes straight back instead of vanishing.
	g, err := New("s1", 100, 1, 10)
	require.NoError(t, err)

	res, err := g.Resolve(1)
	require.NoError(t, err)
	assert.True(t, res.Refunded)
	assert.Equal(t, int64(1), res.Failer)
	assert.Equal(t, int64(10), res.Pot)
}

// TestResolveWinnerEligibilityProperty verifies the winner is always one of
// the non-failer join entries for any join history.
func TestResolveWinnerEligibilityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bet := rapid.Int64Range(1, 1000).Draw(t, "bet")
		g, err := New("s", 1, 1, bet)
		if err != nil {
			t.Fatalf("unexpected validation error: %v", err)
		}

		joinCount := rapid.IntRange(0, 30).Draw(t, "joinCount")
		for i := 0; i < joinCount; i++ {
			g.RecordJoin(rapid.Int64Range(1, 8).Draw(t, "joiner"))
		}

		failer := rapid.Int64Range(1, 8).Draw(t, "failer")
		g.RecordJoin(failer)

		res, err := g.Resolve(failer)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}

		if res.Pot != bet*int64(len(g.Joins)) {
			t.Fatalf("pot %d, want %d", res.Pot, bet*int64(len(g.Joins)))
		}

		if res.Refunded {
			for _, p := range g.Joins {
				if p != failer {
					t.Fatalf("refund with eligible entry %d present", p)
				}
			}
			return
		}

		if res.Winner == failer {
			t.Fatalf("failer %d selected as winner", failer)
		}
		found := false
		for _, p := range g.Joins {
			if p == res.Winner {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("winner %d never joined", res.Winner)
		}
	})
}
