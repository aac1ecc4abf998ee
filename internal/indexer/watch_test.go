package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestWatch_CoalescesQueuedTriggers(t *testing.T) {
	cfg := testConfig(t)
	a := writeNote(t, cfg, "a.md", noteA)
	b := writeNote(t, cfg, "b.md", noteB)
	ledger := &fakeLedger{}
	idx := newTestIndexer(t, cfg, newCountingProvider(), WithLedger(ledger))

	triggers := make(chan string, 8)
	triggers <- a
	triggers <- b
	triggers <- a
	close(triggers)

	if err := idx.Watch(context.Background(), triggers); err != nil {
		t.Fatal(err)
	}
	if idx.State().LiveCount() != 2 {
		t.Errorf("LiveCount = %d", idx.State().LiveCount())
	}
	if len(ledger.runs) != 1 {
		t.Fatalf("queued triggers should coalesce into one run, got %d", len(ledger.runs))
	}
	if ledger.runs[0].Kind != "watch" || ledger.runs[0].Total != 2 {
		t.Errorf("run = %+v", ledger.runs[0])
	}
}

func TestWatch_DuplicateTriggerIsHarmless(t *testing.T) {
	cfg := testConfig(t)
	a := writeNote(t, cfg, "a.md", noteA)
	provider := newCountingProvider()
	idx := newTestIndexer(t, cfg, provider)

	triggers := make(chan string)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- idx.Watch(ctx, triggers) }()

	triggers <- a
	triggers <- a
	triggers <- a

	deadline := time.After(5 * time.Second)
	for provider.Calls() < 1 || idx.State().LiveCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for watch update")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if provider.Calls() != 1 {
		t.Errorf("provider calls = %d; duplicates should classify unchanged", provider.Calls())
	}
	if idx.State().Count() != 1 {
		t.Errorf("Count = %d", idx.State().Count())
	}
}

func TestWatch_RetriesAfterLockReleased(t *testing.T) {
	cfg := testConfig(t)
	a := writeNote(t, cfg, "a.md", noteA)
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.LockPath), 0755); err != nil {
		t.Fatal(err)
	}
	other := flock.New(cfg.Storage.LockPath)
	if locked, err := other.TryLock(); err != nil || !locked {
		t.Fatalf("could not take lock: %v", err)
	}
	defer other.Unlock()

	idx := newTestIndexer(t, cfg, newCountingProvider(),
		WithLockTimeout(100*time.Millisecond),
		WithRetryBackoff(50*time.Millisecond, 200*time.Millisecond))

	triggers := make(chan string, 1)
	triggers <- a
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- idx.Watch(ctx, triggers) }()

	time.Sleep(500 * time.Millisecond)
	if idx.State().LiveCount() != 0 {
		t.Fatal("nothing should be indexed while the lock is held")
	}
	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for idx.State().LiveCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("trigger was not retried after the lock was released")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestWatch_ClosedTriggersFinishPendingRetry(t *testing.T) {
	cfg := testConfig(t)
	a := writeNote(t, cfg, "a.md", noteA)
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.LockPath), 0755); err != nil {
		t.Fatal(err)
	}
	other := flock.New(cfg.Storage.LockPath)
	if locked, err := other.TryLock(); err != nil || !locked {
		t.Fatalf("could not take lock: %v", err)
	}
	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = other.Unlock()
	}()

	idx := newTestIndexer(t, cfg, newCountingProvider(),
		WithLockTimeout(50*time.Millisecond),
		WithRetryBackoff(20*time.Millisecond, 100*time.Millisecond))
	triggers := make(chan string, 1)
	triggers <- a
	close(triggers)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Watch(ctx, triggers); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() != nil {
		t.Fatal("Watch should return once the pending path is indexed")
	}
	if idx.State().LiveCount() != 1 {
		t.Errorf("LiveCount = %d, want 1", idx.State().LiveCount())
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		prev, want time.Duration
	}{
		{0, time.Second},
		{time.Second, 2 * time.Second},
		{40 * time.Second, time.Minute},
		{time.Minute, time.Minute},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.prev, time.Second, time.Minute); got != tt.want {
			t.Errorf("nextBackoff(%v) = %v, want %v", tt.prev, got, tt.want)
		}
	}
}
