package core

// refresher.go keeps a warm in-memory snapshot of the remote case set.
//
// Bulk duplicate checks need the whole remote collection; fetching it on
// every check hammers the listing endpoint. A background job re-runs the
// paginated fetch on an interval so checks usually hit a warm snapshot. The
// refresher is long-running and context-aware for graceful shutdown; a
// failed refresh keeps the previous snapshot and logs rather than failing
// the application.

import (
	"context"
	"log/slog"
	"time"
)

// SnapshotMaxAge is how stale a snapshot may be before a duplicate check
// falls back to a direct fetch.
var SnapshotMaxAge = 10 * time.Minute

// Snapshot is one cached copy of the remote case set. Partial marks a
// snapshot whose fetch aborted mid-pagination: usable as best-effort data,
// never as proof that no duplicate exists.
type Snapshot struct {
	Records   []map[string]any
	FetchedAt time.Time
	Partial   bool
}

// RefresherConfig holds configuration for the snapshot refresher.
type RefresherConfig struct {
	Interval time.Duration     // how often to refresh (default: 5m)
	Filters  map[string]string // listing filters applied to every refresh
}

// StartSnapshotRefresher runs the snapshot refresh loop until the context is
// cancelled. It refreshes immediately on start, then every Interval.
func (s *Service) StartSnapshotRefresher(ctx context.Context, cfg RefresherConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	slog.Info("snapshot refresher started", "interval", interval)

	s.refreshSnapshot(ctx, cfg.Filters)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("snapshot refresher stopped")
			return
		case <-ticker.C:
			s.refreshSnapshot(ctx, cfg.Filters)
		}
	}
}

// refreshSnapshot performs one fetch-all and swaps in the new snapshot.
func (s *Service) refreshSnapshot(ctx context.Context, filters map[string]string) {
	records, err := s.FetchCases(ctx, filters)
	if err != nil && len(records) == 0 {
		slog.Warn("snapshot refresh failed", "error", err)
		return
	}

	snap := &Snapshot{
		Records:   records,
		FetchedAt: time.Now(),
		Partial:   err != nil,
	}

	s.snapMu.Lock()
	s.snapshot = snap
	s.snapMu.Unlock()

	slog.Info("snapshot refreshed",
		"records", len(records),
		"partial", snap.Partial,
	)
}

// snapshotOrFetch returns the warm snapshot when fresh, fetching directly
// otherwise. The bool reports whether the data is partial.
func (s *Service) snapshotOrFetch(ctx context.Context) ([]map[string]any, bool, error) {
	s.snapMu.RLock()
	snap := s.snapshot
	s.snapMu.RUnlock()

	if snap != nil && time.Since(snap.FetchedAt) < SnapshotMaxAge {
		return snap.Records, snap.Partial, nil
	}

	records, err := s.FetchCases(ctx, nil)
	if err != nil {
		return records, true, err
	}
	return records, false, nil
}
