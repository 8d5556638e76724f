package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/tasksync/internal/apperr"
)

// Summary tallies a bulk reconciliation.
type Summary struct {
	Total    int             `json:"total"`
	Failed   int             `json:"failed"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Duration time.Duration   `json:"duration_ns"`
}

// ReconcileAll reconciles every path except excluding. Notes are processed
// independently: a failure is logged and counted, never propagated.
func (e *Engine) ReconcileAll(ctx context.Context, paths []string, excluding string) Summary {
	start := time.Now()
	sum := Summary{Outcomes: make(map[Outcome]int)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, p := range paths {
		if p == excluding {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := e.ReconcileOne(ctx, p)
			if err != nil && !errors.Is(err, apperr.ErrMalformedLink) {
				e.logger.Error("reconcile: note failed",
					slog.String("path", p),
					slog.String("error", err.Error()))
			}

			mu.Lock()
			defer mu.Unlock()
			sum.Total++
			switch {
			case err == nil, errors.Is(err, apperr.ErrMalformedLink):
				sum.Outcomes[out]++
			default:
				sum.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	sum.Duration = time.Since(start)
	e.logger.Info("reconcile: scan finished",
		slog.Int("total", sum.Total),
		slog.Int("failed", sum.Failed),
		slog.Int("created", sum.Outcomes[OutcomeCreated]),
		slog.Int("updated", sum.Outcomes[OutcomeUpdated]),
		slog.Int("unlinked", sum.Outcomes[OutcomeUnlinked]),
		slog.Duration("duration", sum.Duration))
	return sum
}
