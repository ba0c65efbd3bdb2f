// Property-based tests for keyed lock serialization.
package lock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// TestConcurrentJoinSerializationProperty: for any set of concurrent
// read-modify-write operations under the same game key, the final value is
// consistent with sequential execution.
func TestConcurrentJoinSerializationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1000, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")

		amounts := make([]int64, numOps)
		expected := initial
		for i := 0; i < numOps; i++ {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += amounts[i]
		}

		key := fmt.Sprintf("lottery:%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))

		kl := NewKeyLock()
		value := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				kl.Lock(key)
				defer kl.Unlock(key)
				value += amount
			}(amount)
		}
		wg.Wait()

		if value != expected {
			t.Fatalf("Value mismatch with locking: expected %d, got %d (initial=%d, numOps=%d)",
				expected, value, initial, numOps)
		}
	})
}

// TestWithLockFunctionProperty: WithLock serializes its callbacks on one key.
func TestWithLockFunctionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1000, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		amountPerOp := rapid.Int64Range(1, 100).Draw(t, "amountPerOp")

		expected := initial + int64(numOps)*amountPerOp
		key := fmt.Sprintf("streak:%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))

		kl := NewKeyLock()
		value := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					value += amountPerOp
					return nil
				})
			}()
		}
		wg.Wait()

		if value != expected {
			t.Fatalf("Value mismatch with WithLock: expected %d, got %d", expected, value)
		}
	})
}

// TestIndependentKeysProperty: locks for different keys never interfere with
// each other's serialization.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(5, 20).Draw(t, "opsPerKey")

		initial := make(map[string]int64)
		expected := make(map[string]int64)
		values := make(map[string]*int64)
		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("lottery:%d", i+1)
			v := rapid.Int64Range(1000, 10000).Draw(t, "initial")
			initial[key] = v
			expected[key] = v + int64(opsPerKey)*10
			b := v
			values[key] = &b
		}

		kl := NewKeyLock()

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for key := range initial {
			for j := 0; j < opsPerKey; j++ {
				go func(key string) {
					defer wg.Done()
					kl.Lock(key)
					defer kl.Unlock(key)
					*values[key] += 10
				}(key)
			}
		}
		wg.Wait()

		for key := range initial {
			if *values[key] != expected[key] {
				t.Fatalf("Key %s value mismatch: expected %d, got %d", key, expected[key], *values[key])
			}
		}
	})
}

// TestTryLockExclusivityProperty: simultaneous TryLock attempts admit at least
// one winner and leave the key free afterwards.
func TestTryLockExclusivityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := fmt.Sprintf("lottery:%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		kl := NewKeyLock()

		var successCount atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)

		startCh := make(chan struct{})
		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-startCh

				if kl.TryLock(key) {
					successCount.Add(1)
					kl.Unlock(key)
				}
			}()
		}

		close(startCh)
		wg.Wait()

		if successCount.Load() < 1 {
			t.Fatalf("At least one TryLock should succeed, got %d successes", successCount.Load())
		}

		if !kl.TryLock(key) {
			t.Fatal("Lock should be available after all operations complete")
		}
		kl.Unlock(key)
	})
}

// TestLockUnlockSymmetryProperty: every Lock followed by Unlock leaves the key
// available.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := fmt.Sprintf("streak:%d", rapid.Int64Range(1, 1000000).Draw(t, "gameID"))
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		kl := NewKeyLock()

		for i := 0; i < numCycles; i++ {
			kl.Lock(key)
			kl.Unlock(key)
		}

		if !kl.TryLock(key) {
			t.Fatal("Lock should be available after symmetric lock/unlock cycles")
		}
		kl.Unlock(key)
	})
}
