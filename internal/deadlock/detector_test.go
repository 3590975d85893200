package deadlock

import (
	"testing"
	"time"

	"github.com/kwestlund/cooldb/internal/lock"
	"github.com/kwestlund/cooldb/storage"
)

func TestSweepBreaksSimpleCycle(t *testing.T) {
	m := lock.New()
	m.Timeout = 5 * time.Second

	a := storage.NewFilePage(1, 1)
	b := storage.NewFilePage(1, 2)

	if err := m.XLock(1, a); err != nil {
		t.Fatal(err)
	}
	if err := m.XLock(2, b); err != nil {
		t.Fatal(err)
	}

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- m.XLock(1, b) }() // 1 waits on 2
	go func() { done2 <- m.XLock(2, a) }() // 2 waits on 1: cycle

	time.Sleep(30 * time.Millisecond)

	d := New(m, time.Hour, nil)
	aborted := d.Sweep()
	if len(aborted) != 1 {
		t.Fatalf("expected exactly one victim, got %v", aborted)
	}

	victim := aborted[0]
	var other storage.TxID
	var victimErr, otherErr error
	if victim == 1 {
		victimErr = <-done1
		other = 2
		m.ReleaseAll(victim) // the victim rolls back, releasing what it holds
		otherErr = <-done2
	} else {
		victimErr = <-done2
		other = 1
		m.ReleaseAll(victim)
		otherErr = <-done1
	}

	if victimErr != lock.ErrAborted {
		t.Fatalf("expected victim to be aborted, got %v", victimErr)
	}
	_ = other
	if otherErr != nil {
		t.Fatalf("expected survivor to acquire its lock, got %v", otherErr)
	}
}

func TestSweepNoopWithoutCycle(t *testing.T) {
	m := lock.New()
	a := storage.NewFilePage(1, 1)

	if err := m.SLock(1, a); err != nil {
		t.Fatal(err)
	}
	if err := m.SLock(2, a); err != nil {
		t.Fatal(err)
	}

	d := New(m, time.Hour, nil)
	if aborted := d.Sweep(); len(aborted) != 0 {
		t.Fatalf("expected no victims, got %v", aborted)
	}
}

func TestCostFuncSelectsCheaperVictim(t *testing.T) {
	m := lock.New()
	m.Timeout = 5 * time.Second

	a := storage.NewFilePage(1, 1)
	b := storage.NewFilePage(1, 2)

	if err := m.XLock(1, a); err != nil {
		t.Fatal(err)
	}
	if err := m.XLock(2, b); err != nil {
		t.Fatal(err)
	}

	go m.XLock(1, b)
	go m.XLock(2, a)
	time.Sleep(30 * time.Millisecond)

	cost := func(txn storage.TxID) int {
		if txn == 2 {
			return 0
		}
		return 100
	}

	d := New(m, time.Hour, cost)
	aborted := d.Sweep()
	if len(aborted) != 1 || aborted[0] != 2 {
		t.Fatalf("expected txn 2 (cheapest) to be the victim, got %v", aborted)
	}
}
