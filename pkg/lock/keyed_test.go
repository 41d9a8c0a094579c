package lock

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	k := NewKeyedMutex(time.Second)

	if err := k.Acquire("a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	k.Release("a")
	if err := k.Acquire("a"); err != nil {
		t.Fatalf("Re-acquire after release failed: %v", err)
	}
	k.Release("a")
}

func TestIndependentKeysDoNotContend(t *testing.T) {
	k := NewKeyedMutex(50 * time.Millisecond)

	if err := k.Acquire("a"); err != nil {
		t.Fatalf("Acquire a failed: %v", err)
	}
	defer k.Release("a")

	if err := k.Acquire("b"); err != nil {
		t.Fatalf("Acquire b should not contend with a: %v", err)
	}
	k.Release("b")
}

func TestContendedAcquireTimesOut(t *testing.T) {
	k := NewKeyedMutex(50 * time.Millisecond)

	if err := k.Acquire("a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	err := k.Acquire("a")
	if err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned before wait bound: %v", elapsed)
	}
	k.Release("a")
}

func TestWaiterGetsLockOnRelease(t *testing.T) {
	k := NewKeyedMutex(time.Second)

	if err := k.Acquire("a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		got <- k.Acquire("a")
	}()

	time.Sleep(20 * time.Millisecond)
	k.Release("a")

	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	k.Release("a")
}

func TestReleasedKeysAreReclaimed(t *testing.T) {
	k := NewKeyedMutex(time.Second)

	for i := 0; i < 1000; i++ {
		key := "wallet-" + strconv.Itoa(i)
		if err := k.Acquire(key); err != nil {
			t.Fatalf("Acquire %s failed: %v", key, err)
		}
		k.Release(key)
	}

	if n := k.size(); n != 0 {
		t.Errorf("expected empty lock table after releases, got %d live keys", n)
	}

	// A reclaimed key still locks correctly when it comes back.
	if err := k.Acquire("wallet-0"); err != nil {
		t.Fatalf("re-acquire after reclaim failed: %v", err)
	}
	if n := k.size(); n != 1 {
		t.Errorf("expected 1 live key while held, got %d", n)
	}
	k.Release("wallet-0")
}

func TestTimedOutWaiterDropsItsSlotReference(t *testing.T) {
	k := NewKeyedMutex(20 * time.Millisecond)

	if err := k.Acquire("a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := k.Acquire("a"); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	// Holder's reference is the only one left; release empties the table.
	if n := k.size(); n != 1 {
		t.Errorf("expected 1 live key while held, got %d", n)
	}
	k.Release("a")
	if n := k.size(); n != 0 {
		t.Errorf("expected empty lock table, got %d live keys", n)
	}
}

func TestMutualExclusionUnderLoad(t *testing.T) {
	k := NewKeyedMutex(5 * time.Second)

	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := k.Acquire("hot"); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter--
			mu.Unlock()
			k.Release("hot")
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Errorf("expected at most 1 holder at a time, saw %d", max)
	}
}
