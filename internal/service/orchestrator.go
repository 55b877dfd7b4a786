package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/breaker"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/observability"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/remote"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
	"go.uber.org/zap"
)

const defaultInlineTimeout = 5 * time.Second

// CaptureInput is what the capture collaborator hands over after a decode.
type CaptureInput struct {
	EntityID          string
	DeviceID          string
	CapturedAt        time.Time
	Payload           string
	ArtifactLocalPath *string
}

// Orchestrator is the inline fast path: durably append first, then attempt
// immediate replication unless the device is offline or the record-create
// breaker is already rejecting, in which case the record goes straight to
// the retry queue without paying a network round trip.
type Orchestrator struct {
	records       repository.RecordRepository
	monitor       Connectivity
	breakers      *breaker.Registry
	repl          *Replicator
	deviceID      string
	inlineTimeout time.Duration
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewOrchestrator(
	records repository.RecordRepository,
	monitor Connectivity,
	breakers *breaker.Registry,
	repl *Replicator,
	deviceID string,
	inlineTimeout time.Duration,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if monitor == nil {
		return nil, fmt.Errorf("connectivity monitor is required")
	}
	if breakers == nil {
		return nil, fmt.Errorf("breaker registry is required")
	}
	if repl == nil {
		return nil, fmt.Errorf("replicator is required")
	}
	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if inlineTimeout <= 0 {
		inlineTimeout = defaultInlineTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		records:       records,
		monitor:       monitor,
		breakers:      breakers,
		repl:          repl,
		deviceID:      deviceID,
		inlineTimeout: inlineTimeout,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Submit durably records a capture and attempts inline replication. The
// append is the promise of delivery: a storage failure here is fatal and
// surfaced to the caller, never swallowed. The inline attempt is bounded
// by the inline timeout and falls back to the queue instead of blocking
// the capture path.
func (o *Orchestrator) Submit(ctx context.Context, input CaptureInput) (*domain.Record, error) {
	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" {
		deviceID = o.deviceID
	}
	capturedAt := input.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = o.now()
	}

	rec := &domain.Record{
		EntityID:          strings.TrimSpace(input.EntityID),
		DeviceID:          deviceID,
		CapturedAt:        capturedAt.UTC(),
		Payload:           input.Payload,
		ArtifactLocalPath: input.ArtifactLocalPath,
	}
	rec.DedupKey = domain.BuildDedupKey(rec.EntityID, rec.CapturedAt, rec.DeviceID)

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if err := o.records.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("durable append failed: %w", err)
	}
	if o.metrics != nil {
		o.metrics.IncRecordCaptured()
	}

	logger := observability.WithContextLogger(o.logger, ctx).With(zap.Uint64("localId", rec.LocalID))
	logger.Info("record captured",
		zap.String("entityId", rec.EntityID),
		zap.String("dedupKey", rec.DedupKey),
	)

	inlineCtx, cancel := context.WithTimeout(ctx, o.inlineTimeout)
	defer cancel()
	o.syncInline(inlineCtx, logger, rec)

	return o.records.GetByID(ctx, rec.LocalID)
}

func (o *Orchestrator) syncInline(ctx context.Context, logger *zap.Logger, rec *domain.Record) {
	if !o.monitor.Online(ctx) {
		o.enqueue(ctx, logger, rec, "device offline")
		return
	}
	if state := o.breakers.Get(remote.EndpointRecordCreate).State(); state == breaker.StateOpen {
		o.enqueue(ctx, logger, rec, "record-create breaker open")
		return
	}

	claimed, err := o.records.Transition(ctx, rec.LocalID, domain.StatePending, domain.StateInProgress, map[string]any{
		"last_attempt_at": o.now().UTC(),
	})
	if err != nil {
		// Still PENDING; the startup reconciliation or worker will pick
		// it up.
		logger.Error("failed to claim record for inline sync", zap.Error(err))
		return
	}
	if !claimed {
		logger.Warn("record already claimed, skipping inline sync")
		return
	}

	o.repl.replicate(ctx, rec, "inline")
}

func (o *Orchestrator) enqueue(ctx context.Context, logger *zap.Logger, rec *domain.Record, reason string) {
	ok, err := o.records.Transition(ctx, rec.LocalID, domain.StatePending, domain.StateQueued, map[string]any{
		"next_eligible_at": o.now().UTC(),
	})
	if err != nil {
		logger.Error("failed to enqueue record", zap.String("reason", reason), zap.Error(err))
		return
	}
	if !ok {
		logger.Warn("record state changed before enqueue", zap.String("reason", reason))
		return
	}

	logger.Info("inline sync skipped, record queued", zap.String("reason", reason))
}
