package catalog

import (
	"context"
	"log/slog"
	"time"
)

// Refresher periodically rescans the catalog directory for newly published assessments
type Refresher struct {
	loader   *Loader
	dir      string
	interval time.Duration
}

// NewRefresher creates a new catalog refresh worker. A non-positive interval disables it.
func NewRefresher(loader *Loader, dir string, interval time.Duration) *Refresher {
	return &Refresher{
		loader:   loader,
		dir:      dir,
		interval: interval,
	}
}

// Start begins the refresh worker in a goroutine
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		slog.Info("catalog refresher disabled")
		return
	}
	go r.run(ctx)
}

// run is the main loop for the refresh worker
func (r *Refresher) run(ctx context.Context) {
	slog.Info("catalog refresher started", "dir", r.dir, "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("catalog refresher stopped")
			return
		case <-ticker.C:
			r.Refresh()
		}
	}
}

// Refresh rescans the directory once and returns how many assessments were added
func (r *Refresher) Refresh() int {
	slog.Debug("running catalog refresh", "dir", r.dir)

	results, err := r.loader.LoadFromDir(r.dir)
	if err != nil {
		slog.Error("failed to refresh catalog", "dir", r.dir, "error", err)
		return 0
	}

	added := 0
	for _, res := range results {
		if res.Added {
			added++
		}
	}
	if added > 0 {
		slog.Info("catalog refreshed", "added", added)
	}
	return added
}
