package worker

import (
	"context"
	"log/slog"
	"time"
)

// Prunable is a store that can drop rows older than a cutoff.
type Prunable interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes old data based on retention policy.
type Pruner struct {
	retention time.Duration
	targets   map[string]Prunable
	now       func() time.Time
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, targets map[string]Prunable, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		targets:   targets,
		now:       time.Now,
		log:       log,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one pass over every target.
func (p *Pruner) Prune(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	for name, t := range p.targets {
		n, err := t.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			p.log.Error("Failed to prune", "target", name, "error", err)
			continue
		}
		if n > 0 {
			p.log.Info("Pruned expired rows", "target", name, "rows", n, "cutoff", cutoff)
		}
	}
}
