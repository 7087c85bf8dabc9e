package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

type watchEvent struct {
	listing domain.DocumentListing
	err     error
}

func seedWorkspace(repo *repoFake, workspaceID string, n int) {
	for i := 0; i < n; i++ {
		_, _ = repo.Insert(context.Background(), &domain.Document{
			WorkspaceID: workspaceID,
			OwnerID:     "u1",
			Name:        "doc.pdf",
			Status:      domain.StatusPending,
		})
	}
}

func startWatch(ctx context.Context, w *StatusWatcherUseCase, workspaceID string) (chan watchEvent, chan struct{}) {
	events := make(chan watchEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for listing, err := range w.Watch(ctx, workspaceID) {
			events <- watchEvent{listing: listing, err: err}
		}
	}()
	return events, done
}

func nextEvent(t *testing.T, events chan watchEvent) watchEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for listing emission")
		return watchEvent{}
	}
}

func nextTick(t *testing.T, clock *fakeClock) chan time.Time {
	t.Helper()
	select {
	case tick := <-clock.armed:
		return tick
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for watcher to schedule a tick")
		return nil
	}
}

func TestWatchEmitsFullListingEveryInterval(t *testing.T) {
	repo := newRepoFake()
	seedWorkspace(repo, "w1", 3)
	seedWorkspace(repo, "w2", 1)
	clock := newFakeClock()
	w := NewStatusWatcherUseCase(repo, clock, WatcherConfig{Interval: 5 * time.Second}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, done := startWatch(ctx, w, "w1")

	first := nextEvent(t, events)
	if first.err != nil || len(first.listing.Documents) != 3 {
		t.Fatalf("unexpected initial listing %+v", first)
	}

	for i := 0; i < 3; i++ {
		if i == 1 {
			seedWorkspace(repo, "w1", 1)
		}
		nextTick(t, clock) <- clock.advance(5 * time.Second)
		ev := nextEvent(t, events)
		if ev.err != nil {
			t.Fatalf("tick %d: unexpected error %v", i, ev.err)
		}
		want := 3
		if i >= 1 {
			want = 4
		}
		if len(ev.listing.Documents) != want {
			t.Fatalf("tick %d: expected %d documents, got %d", i, want, len(ev.listing.Documents))
		}
		if ev.listing.WorkspaceID != "w1" {
			t.Fatalf("tick %d: unexpected workspace %s", i, ev.listing.WorkspaceID)
		}
	}

	cancel()
	<-done
	if got := repo.listCount(); got != 4 {
		t.Fatalf("expected 4 polls, got %d", got)
	}
}

func TestWatchKeepsPollingSettledWorkspace(t *testing.T) {
	repo := newRepoFake()
	seedWorkspace(repo, "w1", 1)
	_ = repo.UpdateStatus(context.Background(), "doc-1", domain.StatusCompleted, "")
	clock := newFakeClock()
	w := NewStatusWatcherUseCase(repo, clock, WatcherConfig{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, done := startWatch(ctx, w, "w1")

	for i := 0; i < 3; i++ {
		ev := nextEvent(t, events)
		if !ev.listing.Settled() {
			t.Fatalf("expected settled listing")
		}
		nextTick(t, clock) <- clock.advance(DefaultWatchInterval)
	}
	nextEvent(t, events)
	cancel()
	<-done
}

func TestWatchCancellationStopsBeforeDueTick(t *testing.T) {
	repo := newRepoFake()
	seedWorkspace(repo, "w1", 2)
	clock := newFakeClock()
	w := NewStatusWatcherUseCase(repo, clock, WatcherConfig{Interval: 5 * time.Second}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events, done := startWatch(ctx, w, "w1")

	nextEvent(t, events)
	tick := nextTick(t, clock)

	// The next tick is due right after cancellation; both channels are ready.
	cancel()
	tick <- clock.advance(5*time.Second + time.Nanosecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop after cancellation")
	}
	if got := repo.listCount(); got != 1 {
		t.Fatalf("expected no poll after cancellation, got %d polls", got)
	}
	if len(events) != 0 {
		t.Fatalf("expected zero emissions after cancellation, got %d", len(events))
	}
}

func TestWatchPollFailureDoesNotEndSequence(t *testing.T) {
	repo := newRepoFake()
	seedWorkspace(repo, "w1", 1)
	repo.setListErr(errors.New("connection reset"))
	clock := newFakeClock()
	w := NewStatusWatcherUseCase(repo, clock, WatcherConfig{EscalateAfter: 2}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, done := startWatch(ctx, w, "w1")

	for i := 0; i < 2; i++ {
		ev := nextEvent(t, events)
		if !domain.IsKind(ev.err, domain.ErrPollFailed) {
			t.Fatalf("expected ErrPollFailed, got %v", ev.err)
		}
		nextTick(t, clock) <- clock.advance(DefaultWatchInterval)
	}

	repo.setListErr(nil)
	nextTick(t, clock) <- clock.advance(DefaultWatchInterval)
	ev := nextEvent(t, events)
	if ev.err != nil || len(ev.listing.Documents) != 1 {
		t.Fatalf("expected recovery listing, got %+v", ev)
	}
	cancel()
	<-done
}

func TestWatchBreakStopsPolling(t *testing.T) {
	repo := newRepoFake()
	seedWorkspace(repo, "w1", 1)
	clock := newFakeClock()
	w := NewStatusWatcherUseCase(repo, clock, WatcherConfig{}, nil, nil)

	go func() {
		for tick := range clock.armed {
			tick <- clock.advance(DefaultWatchInterval)
		}
	}()

	seen := 0
	for _, err := range w.Watch(context.Background(), "w1") {
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		seen++
		if seen == 2 {
			break
		}
	}
	close(clock.armed)
	if got := repo.listCount(); got != 2 {
		t.Fatalf("expected 2 polls, got %d", got)
	}
}

func TestWatchRequiresWorkspace(t *testing.T) {
	w := NewStatusWatcherUseCase(newRepoFake(), newFakeClock(), WatcherConfig{}, nil, nil)
	count := 0
	for _, err := range w.Watch(context.Background(), " ") {
		count++
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	}
	if count != 1 {
		t.Fatalf("expected a single error emission, got %d", count)
	}
}

func TestSnapshotUsesCacheUntilInvalidated(t *testing.T) {
	repo := newRepoFake()
	seedWorkspace(repo, "w1", 1)
	clock := newFakeClock()
	w := NewStatusWatcherUseCase(repo, clock, WatcherConfig{Interval: 5 * time.Second}, nil, nil)

	if _, err := w.Snapshot(context.Background(), "w1"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if _, err := w.Snapshot(context.Background(), "w1"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := repo.listCount(); got != 1 {
		t.Fatalf("expected cached second snapshot, got %d polls", got)
	}

	w.Invalidate("w1")
	if _, err := w.Snapshot(context.Background(), "w1"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := repo.listCount(); got != 2 {
		t.Fatalf("expected poll after invalidation, got %d polls", got)
	}

	clock.advance(5 * time.Second)
	if _, err := w.Snapshot(context.Background(), "w1"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := repo.listCount(); got != 3 {
		t.Fatalf("expected poll after cache aged out, got %d polls", got)
	}
}

func TestWatchSequenceCanBeRangedConcurrently(t *testing.T) {
	repo := newRepoFake()
	seedWorkspace(repo, "w1", 2)
	w := NewStatusWatcherUseCase(repo, newFakeClock(), WatcherConfig{Interval: time.Second}, nil, nil)
	seq := w.Watch(context.Background(), " w1 ")

	results := make(chan watchEvent, 2)
	for i := 0; i < 2; i++ {
		go func() {
			for listing, err := range seq {
				results <- watchEvent{listing: listing, err: err}
				break
			}
		}()
	}
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, results)
		if ev.err != nil {
			t.Fatalf("unexpected poll error: %v", ev.err)
		}
		if ev.listing.WorkspaceID != "w1" || len(ev.listing.Documents) != 2 {
			t.Fatalf("unexpected listing %+v", ev.listing)
		}
	}
}
