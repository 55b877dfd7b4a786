package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
	"go.uber.org/zap"
)

// Recovery re-queues records left in a non-terminal state by a crash or
// power loss. It runs once at startup, before the worker starts.
type Recovery struct {
	records repository.RecordRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewRecovery(records repository.RecordRepository, logger *zap.Logger) (*Recovery, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recovery{
		records: records,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run moves every PENDING and IN_PROGRESS record back to QUEUED, eligible
// immediately. Retry counts are preserved; an interrupted attempt may have
// reached the remote side, and the create path is idempotent, so
// re-attempting is safe.
func (r *Recovery) Run(ctx context.Context) (int, error) {
	records, err := r.records.QueryRecoverable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query recoverable records: %w", err)
	}

	now := r.now().UTC()
	recovered := 0
	for _, rec := range records {
		ok, err := r.records.Transition(ctx, rec.LocalID, rec.SyncState, domain.StateQueued, map[string]any{
			"next_eligible_at": now,
		})
		if err != nil {
			r.logger.Error("failed to recover record",
				zap.Uint64("localId", rec.LocalID),
				zap.String("state", rec.SyncState.String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			recovered++
		}
	}

	if recovered > 0 {
		r.logger.Info("recovered interrupted records", zap.Int("count", recovered))
	}
	return recovered, nil
}
