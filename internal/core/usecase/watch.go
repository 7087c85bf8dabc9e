package usecase

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

const (
	DefaultWatchInterval        = 5 * time.Second
	DefaultWatchEscalationPolls = 5
)

type WatcherConfig struct {
	Interval time.Duration
	// EscalateAfter is the number of consecutive failed polls after which
	// failures are logged at error level instead of warn.
	EscalateAfter int
}

// StatusWatcherUseCase re-reads workspace listings on a fixed cadence.
type StatusWatcherUseCase struct {
	repo    ports.DocumentRepository
	clock   ports.Clock
	cfg     WatcherConfig
	cache   *listingCache
	metrics ports.PipelineMetrics
	logger  *slog.Logger
}

func NewStatusWatcherUseCase(
	repo ports.DocumentRepository,
	clock ports.Clock,
	cfg WatcherConfig,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *StatusWatcherUseCase {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWatchInterval
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = DefaultWatchEscalationPolls
	}
	if metrics == nil {
		metrics = ports.NopPipelineMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusWatcherUseCase{
		repo:    repo,
		clock:   clock,
		cfg:     cfg,
		cache:   newListingCache(),
		metrics: metrics,
		logger:  logger,
	}
}

func (w *StatusWatcherUseCase) Interval() time.Duration {
	return w.cfg.Interval
}

// Watch yields the full listing of a workspace immediately and then once per interval.
// A failed poll yields an ErrPollFailed error for that tick only. The sequence never
// ends on its own; cancelling ctx or breaking out of the range stops it, and no poll
// runs after cancellation is observed.
func (w *StatusWatcherUseCase) Watch(ctx context.Context, workspaceID string) iter.Seq2[domain.DocumentListing, error] {
	return func(yield func(domain.DocumentListing, error) bool) {
		workspaceID := strings.TrimSpace(workspaceID)
		if workspaceID == "" {
			yield(domain.DocumentListing{}, domain.WrapError(domain.ErrInvalidInput, "watch", errors.New("workspace id is required")))
			return
		}

		failures := 0
		for {
			if ctx.Err() != nil {
				return
			}
			listing, err := w.poll(ctx, workspaceID)
			if ctx.Err() != nil {
				return
			}

			if err != nil {
				failures++
				w.logPollFailure(workspaceID, failures, err)
				if !yield(domain.DocumentListing{WorkspaceID: workspaceID}, err) {
					return
				}
			} else {
				if failures > 0 {
					w.logger.Info("watch_poll_recovered", "workspace_id", workspaceID, "failed_polls", failures)
				}
				failures = 0
				if !yield(listing, nil) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-w.clock.After(w.cfg.Interval):
			}
		}
	}
}

// Snapshot returns the listing cached by the last poll if it is younger than one
// interval, polling once otherwise.
func (w *StatusWatcherUseCase) Snapshot(ctx context.Context, workspaceID string) (domain.DocumentListing, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return domain.DocumentListing{}, domain.WrapError(domain.ErrInvalidInput, "snapshot", errors.New("workspace id is required"))
	}
	if listing, ok := w.cache.get(workspaceID, w.clock.Now(), w.cfg.Interval); ok {
		return listing, nil
	}
	return w.poll(ctx, workspaceID)
}

// Invalidate drops the cached listing so the next read goes to the store.
func (w *StatusWatcherUseCase) Invalidate(workspaceID string) {
	w.cache.drop(workspaceID)
}

func (w *StatusWatcherUseCase) poll(ctx context.Context, workspaceID string) (domain.DocumentListing, error) {
	docs, err := w.repo.ListByWorkspace(ctx, workspaceID)
	w.metrics.RecordPoll(err)
	if err != nil {
		return domain.DocumentListing{}, domain.WrapError(domain.ErrPollFailed, "list workspace documents", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	listing := domain.DocumentListing{
		WorkspaceID: workspaceID,
		Documents:   docs,
		FetchedAt:   w.clock.Now(),
	}
	w.cache.put(listing)
	return listing, nil
}

func (w *StatusWatcherUseCase) logPollFailure(workspaceID string, failures int, err error) {
	attrs := []any{
		"workspace_id", workspaceID,
		"consecutive_failures", failures,
		"error", err,
	}
	if failures >= w.cfg.EscalateAfter {
		w.logger.Error("watch_poll_failing", attrs...)
		return
	}
	w.logger.Warn("watch_poll_failed", attrs...)
}

type listingCache struct {
	mu      sync.RWMutex
	entries map[string]domain.DocumentListing
}

func newListingCache() *listingCache {
	return &listingCache{entries: make(map[string]domain.DocumentListing)}
}

func (c *listingCache) get(workspaceID string, now time.Time, maxAge time.Duration) (domain.DocumentListing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	listing, ok := c.entries[workspaceID]
	if !ok || now.Sub(listing.FetchedAt) >= maxAge {
		return domain.DocumentListing{}, false
	}
	return listing, true
}

func (c *listingCache) put(listing domain.DocumentListing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[listing.WorkspaceID] = listing
}

func (c *listingCache) drop(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, workspaceID)
}

type systemClock struct{}

func SystemClock() ports.Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
