package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/breaker"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/observability"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSyncInterval      = 30 * time.Second
	defaultSyncBatchSize     = 50
	defaultSyncParallelism   = 4
	defaultStaleClaimTimeout = 5 * time.Minute
)

// WorkerConfig bounds one drain cycle.
type WorkerConfig struct {
	Interval          time.Duration
	BatchSize         int
	Parallelism       int
	StaleClaimTimeout time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Interval <= 0 {
		c.Interval = defaultSyncInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultSyncBatchSize
	}
	if c.Parallelism <= 0 {
		c.Parallelism = defaultSyncParallelism
	}
	if c.StaleClaimTimeout <= 0 {
		c.StaleClaimTimeout = defaultStaleClaimTimeout
	}
	return c
}

// CycleStats summarizes one drain cycle.
type CycleStats struct {
	Reclaimed       int64
	Attempted       int
	Synced          int
	Requeued        int
	FailedPermanent int
	Skipped         int
}

// Worker periodically drains the retry queue. Cycles never overlap: a
// force-sync request and the ticker serialize on the same mutex, and all
// coordination with the inline path goes through compare-and-set
// transitions on the durable log.
type Worker struct {
	records  repository.RecordRepository
	monitor  Connectivity
	repl     *Replicator
	breakers *breaker.Registry
	config   WorkerConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	cycleMu sync.Mutex
}

func NewWorker(
	records repository.RecordRepository,
	monitor Connectivity,
	repl *Replicator,
	breakers *breaker.Registry,
	config WorkerConfig,
	logger *zap.Logger,
) (*Worker, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if monitor == nil {
		return nil, fmt.Errorf("connectivity monitor is required")
	}
	if repl == nil {
		return nil, fmt.Errorf("replicator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		records:  records,
		monitor:  monitor,
		repl:     repl,
		breakers: breakers,
		config:   config.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (w *Worker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start drains the queue on the configured interval until context
// cancellation. An initial cycle runs so records queued while the process
// was down do not wait for the first ticker edge.
func (w *Worker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := w.RunCycle(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("initial sync cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("sync cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle drains one batch of eligible queue entries. It is also the
// force-sync entry point, bypassing the interval but still honoring the
// connectivity check and the circuit breakers.
func (w *Worker) RunCycle(ctx context.Context) (CycleStats, error) {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	var stats CycleStats

	if !w.monitor.Online(ctx) {
		w.logger.Info("sync cycle skipped, device offline")
		return stats, nil
	}

	now := w.now()
	reclaimed, err := w.records.ReclaimStale(ctx, now.Add(-w.config.StaleClaimTimeout), now.UTC())
	if err != nil {
		w.logger.Error("failed to reclaim stale claims", zap.Error(err))
	} else if reclaimed > 0 {
		stats.Reclaimed = reclaimed
		w.logger.Warn("reclaimed stale in-progress records", zap.Int64("count", reclaimed))
	}

	due, err := w.records.DueForSync(ctx, now.UTC(), w.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch due records: %w", err)
	}
	if len(due) == 0 {
		w.updateGauges(ctx)
		return stats, nil
	}

	var statsMu sync.Mutex
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Parallelism)

	for i := range due {
		rec := due[i]
		g.Go(func() error {
			claimed, claimErr := w.records.Transition(groupCtx, rec.LocalID, domain.StateQueued, domain.StateInProgress, map[string]any{
				"last_attempt_at": w.now().UTC(),
			})
			if claimErr != nil {
				w.logger.Error("failed to claim queued record",
					zap.Uint64("localId", rec.LocalID),
					zap.Error(claimErr),
				)
			}
			if claimErr != nil || !claimed {
				// Another actor got there first; its transition wins.
				statsMu.Lock()
				stats.Skipped++
				statsMu.Unlock()
				return nil
			}

			result := w.repl.replicate(groupCtx, &rec, "worker")

			statsMu.Lock()
			defer statsMu.Unlock()
			stats.Attempted++
			switch result {
			case outcomeSynced:
				stats.Synced++
			case outcomeRequeued:
				stats.Requeued++
			case outcomeFailedPermanent:
				stats.FailedPermanent++
			case outcomeLost:
				stats.Skipped++
			}
			return nil
		})
	}

	// Workers log and classify their own failures; nothing bubbles up.
	_ = g.Wait()

	w.updateGauges(ctx)
	w.logger.Info("sync cycle finished",
		zap.Int64("reclaimed", stats.Reclaimed),
		zap.Int("attempted", stats.Attempted),
		zap.Int("synced", stats.Synced),
		zap.Int("requeued", stats.Requeued),
		zap.Int("failedPermanent", stats.FailedPermanent),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func (w *Worker) updateGauges(ctx context.Context) {
	if w.metrics == nil {
		return
	}

	counts, err := w.records.CountByState(ctx)
	if err != nil {
		w.logger.Error("failed to count records by state", zap.Error(err))
	} else {
		for _, state := range []domain.SyncState{
			domain.StatePending,
			domain.StateQueued,
			domain.StateInProgress,
			domain.StateSynced,
			domain.StateFailedPermanent,
		} {
			w.metrics.SetQueueDepth(state.String(), float64(counts[state]))
		}
	}

	if w.breakers != nil {
		for _, snap := range w.breakers.Snapshots() {
			w.metrics.SetBreakerState(snap.Endpoint, snap.State.String())
		}
	}
}
