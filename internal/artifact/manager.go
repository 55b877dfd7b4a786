package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
	"go.uber.org/zap"
)

// Manager owns the single rule of artifact retention: a local file may be
// deleted only once its record is confirmed SYNCED. FAILED_PERMANENT
// artifacts are kept until an explicit administrative purge.
type Manager struct {
	records repository.RecordRepository
	logger  *zap.Logger
}

func NewManager(records repository.RecordRepository, logger *zap.Logger) (*Manager, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{records: records, logger: logger}, nil
}

// DeleteIfSynced re-reads the record immediately before deleting, so a
// state change between the caller's decision and this call keeps the file.
func (m *Manager) DeleteIfSynced(ctx context.Context, localID uint64) error {
	rec, err := m.records.GetByID(ctx, localID)
	if err != nil {
		return fmt.Errorf("failed to load record for artifact cleanup: %w", err)
	}

	if rec.SyncState != domain.StateSynced {
		m.logger.Debug("artifact retained, record not synced",
			zap.Uint64("localId", localID),
			zap.String("syncState", rec.SyncState.String()),
		)
		return nil
	}
	if !rec.HasArtifact() {
		return nil
	}

	if err := removeFile(*rec.ArtifactLocalPath); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	m.logger.Info("artifact deleted after confirmed sync",
		zap.Uint64("localId", localID),
		zap.String("path", *rec.ArtifactLocalPath),
	)
	return nil
}

// Purge removes a FAILED_PERMANENT record and its artifact. It is an
// administrative operation; any other state is rejected with ErrConflict.
func (m *Manager) Purge(ctx context.Context, localID uint64) error {
	rec, err := m.records.GetByID(ctx, localID)
	if err != nil {
		return err
	}
	if rec.SyncState != domain.StateFailedPermanent {
		return fmt.Errorf("%w: record %d is %s, only FAILED_PERMANENT records can be purged",
			domain.ErrConflict, localID, rec.SyncState)
	}

	if rec.HasArtifact() {
		if err := removeFile(*rec.ArtifactLocalPath); err != nil {
			return fmt.Errorf("failed to delete artifact during purge: %w", err)
		}
	}

	if err := m.records.PurgeRecord(ctx, localID); err != nil {
		return err
	}

	m.logger.Info("record purged", zap.Uint64("localId", localID))
	return nil
}

// ListFailedPermanent exposes dead-lettered records for manual triage.
func (m *Manager) ListFailedPermanent(ctx context.Context, limit int) ([]domain.Record, error) {
	return m.records.ListFailedPermanent(ctx, limit)
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
