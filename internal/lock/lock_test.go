package lock

import (
	"testing"
	"time"

	"github.com/kwestlund/cooldb/storage"
)

func TestSharedLocksCoexist(t *testing.T) {
	m := New()
	r := storage.NewFilePage(1, 1)

	if err := m.SLock(1, r); err != nil {
		t.Fatal(err)
	}
	if err := m.SLock(2, r); err != nil {
		t.Fatal(err)
	}
}

func TestExclusiveBlocksShared(t *testing.T) {
	m := New()
	m.Timeout = 100 * time.Millisecond
	r := storage.NewFilePage(1, 1)

	if err := m.XLock(1, r); err != nil {
		t.Fatal(err)
	}

	if err := m.SLock(2, r); err != ErrLockTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestUpgradeSharedToExclusive(t *testing.T) {
	m := New()
	r := storage.NewFilePage(1, 1)

	if err := m.SLock(1, r); err != nil {
		t.Fatal(err)
	}
	if err := m.XLock(1, r); err != nil {
		t.Fatalf("upgrade should succeed for sole shared holder: %v", err)
	}
}

func TestReentrantXLockIsNoop(t *testing.T) {
	m := New()
	r := storage.NewFilePage(1, 1)

	if err := m.XLock(1, r); err != nil {
		t.Fatal(err)
	}
	if err := m.XLock(1, r); err != nil {
		t.Fatalf("reentrant xlock should not block self: %v", err)
	}
}

func TestUnlockWakesWaiter(t *testing.T) {
	m := New()
	m.Timeout = time.Second
	r := storage.NewFilePage(1, 1)

	if err := m.XLock(1, r); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- m.XLock(2, r) }()

	time.Sleep(20 * time.Millisecond)
	m.Unlock(1, r)

	if err := <-done; err != nil {
		t.Fatalf("expected waiter to acquire lock, got %v", err)
	}
}

func TestReleaseAllDropsEveryResource(t *testing.T) {
	m := New()
	a := storage.NewFilePage(1, 1)
	b := storage.NewFilePage(1, 2)

	m.SLock(1, a)
	m.XLock(1, b)

	m.ReleaseAll(1)

	if err := m.XLock(2, a); err != nil {
		t.Fatalf("expected lock a to be free: %v", err)
	}
	if err := m.XLock(2, b); err != nil {
		t.Fatalf("expected lock b to be free: %v", err)
	}
}

func TestAbortFailsPendingWait(t *testing.T) {
	m := New()
	m.Timeout = time.Second
	r := storage.NewFilePage(1, 1)

	if err := m.XLock(1, r); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- m.XLock(2, r) }()

	time.Sleep(20 * time.Millisecond)
	m.Abort(2)

	if err := <-done; err != ErrAborted {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestQueuedWriterBlocksNewSharedRequest(t *testing.T) {
	m := New()
	m.Timeout = time.Second
	r := storage.NewFilePage(1, 1)

	// txn 1 holds the lock shared, so txn 2's exclusive request queues
	// behind it instead of being granted immediately.
	if err := m.SLock(1, r); err != nil {
		t.Fatal(err)
	}

	writerDone := make(chan error, 1)
	go func() { writerDone <- m.XLock(2, r) }()
	time.Sleep(20 * time.Millisecond)

	// A third transaction's shared request must not jump the queued
	// writer, or the writer could starve under a steady stream of readers.
	readerDone := make(chan error, 1)
	go func() { readerDone <- m.SLock(3, r) }()
	time.Sleep(20 * time.Millisecond)

	select {
	case err := <-readerDone:
		t.Fatalf("expected txn 3's shared request to queue behind the pending writer, got %v", err)
	default:
	}

	m.Unlock(1, r)

	if err := <-writerDone; err != nil {
		t.Fatalf("expected queued writer to be granted once txn 1 released, got %v", err)
	}

	m.Unlock(2, r)

	if err := <-readerDone; err != nil {
		t.Fatalf("expected txn 3's shared request to be granted after the writer released, got %v", err)
	}
}

func TestWaitEdgesReportsBlocking(t *testing.T) {
	m := New()
	m.Timeout = time.Second
	r := storage.NewFilePage(1, 1)

	if err := m.XLock(1, r); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- m.XLock(2, r) }()
	time.Sleep(20 * time.Millisecond)

	edges := m.WaitEdges()
	if len(edges) != 1 || edges[0].Waiter != 2 || edges[0].Holder != 1 {
		t.Fatalf("unexpected wait edges: %+v", edges)
	}

	m.Abort(2)
	<-done
}
