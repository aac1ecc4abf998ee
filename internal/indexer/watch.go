package indexer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/hyperjump/kioku/internal/models"
	"go.uber.org/zap"
)

const (
	defaultRetryMin = time.Second
	defaultRetryMax = time.Minute
)

// Watch consumes debounced paths from triggers until ctx is done, or until
// triggers is closed and everything received has been indexed. Paths that queue
// up while a run is in progress are coalesced into the next run. When a run
// fails as a whole (the lock is held elsewhere, the files cannot be written) its
// paths stay pending and are retried with exponential backoff.
func (idx *Indexer) Watch(ctx context.Context, triggers <-chan string) error {
	pending := make(map[string]struct{})
	var (
		retry   *time.Timer
		backoff time.Duration
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		if len(pending) == 0 || retry != nil {
			if triggers == nil && len(pending) == 0 {
				return nil
			}
			var retryC <-chan time.Time
			if retry != nil {
				retryC = retry.C
			}
			select {
			case <-ctx.Done():
				return nil
			case p, ok := <-triggers:
				if !ok {
					triggers = nil
				} else {
					pending[p] = struct{}{}
				}
				continue
			case <-retryC:
				retry = nil
			}
		}
		triggers = drain(triggers, pending)

		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		stats, err := idx.updatePaths(ctx, models.RunWatch, paths)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			backoff = nextBackoff(backoff, idx.retryMin, idx.retryMax)
			retry = time.NewTimer(backoff)
			idx.logger.Error("watch update failed, will retry",
				zap.Strings("paths", paths),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			continue
		case stats.Processed > 0 || stats.Failed > 0:
			idx.logger.Info("watch update applied",
				zap.Int("processed", stats.Processed),
				zap.Int("skipped", stats.Skipped),
				zap.Int("failed", stats.Failed))
		}
		backoff = 0
		clear(pending)
	}
}

// drain moves whatever is already queued on triggers into pending without
// blocking. It returns nil once triggers is closed.
func drain(triggers <-chan string, pending map[string]struct{}) <-chan string {
	for {
		select {
		case p, ok := <-triggers:
			if !ok {
				return nil
			}
			pending[p] = struct{}{}
		default:
			return triggers
		}
	}
}

func nextBackoff(prev, first, limit time.Duration) time.Duration {
	if prev <= 0 {
		return first
	}
	next := prev * 2
	if next > limit {
		return limit
	}
	return next
}
