package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/breaker"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/observability"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/remote"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries     = 8
	defaultBaseRetryDelay = 5 * time.Second
	defaultMaxRetryDelay  = 15 * time.Minute
	maxRetryJitterMillis  = 250
)

// Connectivity answers whether the device currently has a network path.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ArtifactCleaner gates local artifact deletion on confirmed remote sync.
type ArtifactCleaner interface {
	DeleteIfSynced(ctx context.Context, localID uint64) error
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeRequeued
	outcomeFailedPermanent
	outcomeLost
)

// ReplicatorConfig bounds the retry behavior of failed attempts.
type ReplicatorConfig struct {
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

func (c ReplicatorConfig) withDefaults() ReplicatorConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = defaultBaseRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}
	return c
}

// Replicator performs the two-phase replication shared by the inline fast
// path and the background worker: upload the artifact if one is pending,
// then upsert the attendance record under its dedup key. It owns every
// state transition out of IN_PROGRESS.
type Replicator struct {
	records   repository.RecordRepository
	attempts  repository.SyncAttemptRepository
	client    remote.Client
	artifacts ArtifactCleaner
	notifier  Notifier
	logger    *zap.Logger
	metrics   *observability.Metrics
	config    ReplicatorConfig

	now      func() time.Time
	randIntn func(n int) int
}

func NewReplicator(
	records repository.RecordRepository,
	attempts repository.SyncAttemptRepository,
	client remote.Client,
	artifacts ArtifactCleaner,
	notifier Notifier,
	config ReplicatorConfig,
	logger *zap.Logger,
) (*Replicator, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("sync attempt repository is required")
	}
	if client == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact cleaner is required")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Replicator{
		records:   records,
		attempts:  attempts,
		client:    client,
		artifacts: artifacts,
		notifier:  notifier,
		logger:    logger,
		config:    config.withDefaults(),
		now:       time.Now,
		randIntn:  rand.Intn,
	}, nil
}

func (r *Replicator) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// replicate runs one attempt for a record already claimed IN_PROGRESS and
// transitions it to its next state. Any error stays inside: one bad record
// must never halt the caller's batch.
func (r *Replicator) replicate(ctx context.Context, rec *domain.Record, path string) outcome {
	logger := r.logger.With(
		zap.Uint64("localId", rec.LocalID),
		zap.Int("retryCount", rec.RetryCount),
		zap.String("path", path),
	)

	attemptNumber := rec.RetryCount + 1
	start := r.now()

	remoteID, endpoint, err := r.attemptOnce(ctx, rec)
	r.recordAttempt(ctx, rec.LocalID, attemptNumber, endpoint, err)

	if err == nil {
		ok, transitionErr := r.records.Transition(ctx, rec.LocalID, domain.StateInProgress, domain.StateSynced, map[string]any{
			"remote_id":       remoteID,
			"last_error":      nil,
			"last_attempt_at": r.now().UTC(),
		})
		if transitionErr != nil {
			logger.Error("failed to mark record synced", zap.Error(transitionErr))
			return outcomeLost
		}
		if !ok {
			logger.Warn("record left IN_PROGRESS by another actor, skipping")
			return outcomeLost
		}

		if r.metrics != nil {
			r.metrics.IncRecordSynced(path)
			r.metrics.ObserveSyncDuration(path, r.now().Sub(start))
		}
		if cleanupErr := r.artifacts.DeleteIfSynced(ctx, rec.LocalID); cleanupErr != nil {
			// The record is durably synced; a stuck artifact is only a
			// disk-space problem and must not fail the attempt.
			logger.Error("artifact cleanup failed", zap.Error(cleanupErr))
		}
		r.notifier.RecordSynced(ctx, rec.EntityID, remoteID)

		logger.Info("record synced", zap.String("remoteId", remoteID), zap.String("endpoint", endpoint))
		return outcomeSynced
	}

	errText := err.Error()
	fields := map[string]any{
		"retry_count":     attemptNumber,
		"last_error":      errText,
		"last_attempt_at": r.now().UTC(),
	}

	switch {
	case isPermanentRejection(err):
		// Dead-letter immediately: retrying an unfixable payload wastes
		// attempts and delays transient peers in the same batch.
		r.transitionOrLog(ctx, logger, rec.LocalID, domain.StateFailedPermanent, fields)
		if r.metrics != nil {
			r.metrics.IncSyncFailed(path, "permanent_rejection")
		}
		logger.Warn("record dead-lettered on permanent rejection",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return outcomeFailedPermanent

	case attemptNumber >= r.config.MaxRetries:
		r.transitionOrLog(ctx, logger, rec.LocalID, domain.StateFailedPermanent, fields)
		if r.metrics != nil {
			r.metrics.IncSyncFailed(path, "retry_exhausted")
		}
		logger.Warn("record dead-lettered after exhausting retries",
			zap.Int("maxRetries", r.config.MaxRetries),
			zap.Error(err),
		)
		return outcomeFailedPermanent

	default:
		fields["next_eligible_at"] = r.now().Add(r.computeRetryDelay(attemptNumber)).UTC()
		r.transitionOrLog(ctx, logger, rec.LocalID, domain.StateQueued, fields)
		if r.metrics != nil {
			r.metrics.IncRetryScheduled(path)
		}
		logger.Info("record requeued for retry",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return outcomeRequeued
	}
}

// attemptOnce performs the two replication phases and reports the endpoint
// a failure belongs to.
func (r *Replicator) attemptOnce(ctx context.Context, rec *domain.Record) (string, string, error) {
	artifactURL := rec.ArtifactRemoteURL

	if rec.HasArtifact() && artifactURL == nil {
		hint := fmt.Sprintf("%s/%s", rec.DeviceID, filepath.Base(*rec.ArtifactLocalPath))
		uploadedURL, uploadErr := r.client.UploadArtifact(ctx, *rec.ArtifactLocalPath, hint)
		if uploadErr != nil {
			return "", remote.EndpointArtifactUpload, uploadErr
		}

		// Persist the URL before phase two so a crash here does not force
		// a re-upload on the next attempt.
		if err := r.records.SetArtifactRemoteURL(ctx, rec.LocalID, uploadedURL); err != nil {
			return "", remote.EndpointArtifactUpload, fmt.Errorf("failed to persist artifact url: %w", err)
		}
		rec.ArtifactRemoteURL = &uploadedURL
		artifactURL = &uploadedURL
	}

	entityID, lookupErr := r.client.LookupEntity(ctx, rec.EntityID)
	if lookupErr != nil {
		return "", remote.EndpointEntityLookup, lookupErr
	}

	payload := remote.RecordPayload{
		DeviceID:    rec.DeviceID,
		CapturedAt:  rec.CapturedAt.UTC(),
		ArtifactURL: artifactURL,
		Data:        rec.Payload,
	}
	remoteID, createErr := r.client.CreateRecord(ctx, entityID, payload, rec.DedupKey)
	if createErr != nil {
		return "", remote.EndpointRecordCreate, createErr
	}

	return remoteID, remote.EndpointRecordCreate, nil
}

func (r *Replicator) transitionOrLog(
	ctx context.Context,
	logger *zap.Logger,
	localID uint64,
	next domain.SyncState,
	fields map[string]any,
) {
	ok, err := r.records.Transition(ctx, localID, domain.StateInProgress, next, fields)
	if err != nil {
		logger.Error("failed to transition record",
			zap.String("nextState", next.String()),
			zap.Error(err),
		)
		return
	}
	if !ok {
		logger.Warn("record transition lost, state changed concurrently",
			zap.String("nextState", next.String()),
		)
	}
}

func (r *Replicator) recordAttempt(ctx context.Context, localID uint64, attemptNumber int, endpoint string, attemptErr error) {
	var statusCode *int
	var errText *string

	if attemptErr != nil {
		value := attemptErr.Error()
		errText = &value

		var remoteErr *remote.Error
		if errors.As(attemptErr, &remoteErr) && remoteErr.StatusCode > 0 {
			code := remoteErr.StatusCode
			statusCode = &code
		}
	}

	attempt := &domain.SyncAttempt{
		ID:            uuid.NewString(),
		RecordLocalID: localID,
		AttemptNumber: attemptNumber,
		Endpoint:      endpoint,
		StatusCode:    statusCode,
		Error:         errText,
		CreatedAt:     r.now().UTC(),
	}

	if err := r.attempts.Create(ctx, attempt); err != nil {
		r.logger.Error("failed to record sync attempt",
			zap.Uint64("localId", localID),
			zap.Int("attemptNumber", attemptNumber),
			zap.Error(err),
		)
	}
}

func (r *Replicator) computeRetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := r.config.BaseRetryDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= r.config.MaxRetryDelay {
			delay = r.config.MaxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if r.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = r.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

// isPermanentRejection reports whether retrying can never succeed. Unknown
// errors default to retryable so a local hiccup cannot dead-letter a
// deliverable record.
func isPermanentRejection(err error) bool {
	if errors.Is(err, breaker.ErrOpen) {
		return false
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return true
	}

	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		return !remoteErr.Transient
	}

	return false
}
