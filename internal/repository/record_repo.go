package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"gorm.io/gorm"
)

// StateCount is one row of the per-state record census.
type StateCount struct {
	SyncState domain.SyncState `gorm:"column:sync_state"`
	Count     int64            `gorm:"column:count"`
}

// RecordRepository is the durable log: records are appended before any
// network attempt and every later mutation is a compare-and-set keyed on
// the expected prior state.
type RecordRepository interface {
	Append(ctx context.Context, r *domain.Record) error
	GetByID(ctx context.Context, localID uint64) (*domain.Record, error)
	Transition(ctx context.Context, localID uint64, expected, next domain.SyncState, fields map[string]any) (bool, error)
	SetArtifactRemoteURL(ctx context.Context, localID uint64, remoteURL string) error
	QueryRecoverable(ctx context.Context) ([]domain.Record, error)
	DueForSync(ctx context.Context, now time.Time, limit int) ([]domain.Record, error)
	ReclaimStale(ctx context.Context, abandonedBefore, now time.Time) (int64, error)
	ListFailedPermanent(ctx context.Context, limit int) ([]domain.Record, error)
	CountByState(ctx context.Context) (map[domain.SyncState]int64, error)
	PurgeRecord(ctx context.Context, localID uint64) error
}

type GormRecordRepo struct {
	db *gorm.DB
}

func NewGormRecordRepo(db *gorm.DB) *GormRecordRepo {
	return &GormRecordRepo{db: db}
}

// Append durably writes a new record in PENDING state and assigns its
// local id. A failure here must surface to the capture caller.
func (r *GormRecordRepo) Append(ctx context.Context, rec *domain.Record) error {
	model := recordModelFromDomain(rec)
	model.SyncState = domain.StatePending
	model.RetryCount = 0

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	if rec != nil {
		*rec = *recordModelToDomain(model)
	}
	return nil
}

func (r *GormRecordRepo) GetByID(ctx context.Context, localID uint64) (*domain.Record, error) {
	var model RecordModel
	err := r.db.WithContext(ctx).First(&model, "local_id = ?", localID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

// Transition performs an atomic compare-and-set on the sync state. It
// returns false when another actor already moved the record out of the
// expected state; callers treat that as "claimed elsewhere" and skip.
func (r *GormRecordRepo) Transition(
	ctx context.Context,
	localID uint64,
	expected, next domain.SyncState,
	fields map[string]any,
) (bool, error) {
	updates := map[string]any{"sync_state": next}
	for key, value := range fields {
		updates[key] = value
	}

	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("local_id = ? AND sync_state = ?", localID, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetArtifactRemoteURL persists the uploaded artifact location without a
// state change, so a crash between the two replication phases does not
// force a re-upload on retry.
func (r *GormRecordRepo) SetArtifactRemoteURL(ctx context.Context, localID uint64, remoteURL string) error {
	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("local_id = ?", localID).
		Update("artifact_remote_url", remoteURL)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// QueryRecoverable returns records abandoned mid-transition by a previous
// process: still PENDING (crashed before the inline attempt resolved) or
// IN_PROGRESS (crashed during an attempt).
func (r *GormRecordRepo) QueryRecoverable(ctx context.Context) ([]domain.Record, error) {
	var models []RecordModel
	err := r.db.WithContext(ctx).
		Where("sync_state IN ?", []domain.SyncState{domain.StatePending, domain.StateInProgress}).
		Order("local_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return recordsToDomain(models), nil
}

func (r *GormRecordRepo) DueForSync(ctx context.Context, now time.Time, limit int) ([]domain.Record, error) {
	var models []RecordModel
	err := r.db.WithContext(ctx).
		Where("sync_state = ? AND (next_eligible_at IS NULL OR next_eligible_at <= ?)", domain.StateQueued, now).
		Order("local_id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return recordsToDomain(models), nil
}

// ReclaimStale moves IN_PROGRESS records whose claim predates
// abandonedBefore back to QUEUED so a hung or killed actor cannot strand
// them forever.
func (r *GormRecordRepo) ReclaimStale(ctx context.Context, abandonedBefore, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("sync_state = ? AND (last_attempt_at IS NULL OR last_attempt_at <= ?)", domain.StateInProgress, abandonedBefore).
		Updates(map[string]any{
			"sync_state":       domain.StateQueued,
			"next_eligible_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormRecordRepo) ListFailedPermanent(ctx context.Context, limit int) ([]domain.Record, error) {
	query := r.db.WithContext(ctx).
		Where("sync_state = ?", domain.StateFailedPermanent).
		Order("local_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []RecordModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return recordsToDomain(models), nil
}

func (r *GormRecordRepo) CountByState(ctx context.Context) (map[domain.SyncState]int64, error) {
	var counts []StateCount
	err := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Select("sync_state, COUNT(*) as count").
		Group("sync_state").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	result := make(map[domain.SyncState]int64, len(counts))
	for _, c := range counts {
		result[c.SyncState] = c.Count
	}
	return result, nil
}

// PurgeRecord deletes a FAILED_PERMANENT row. Rows in any other state are
// protected; sync logic itself never deletes records.
func (r *GormRecordRepo) PurgeRecord(ctx context.Context, localID uint64) error {
	result := r.db.WithContext(ctx).
		Where("local_id = ? AND sync_state = ?", localID, domain.StateFailedPermanent).
		Delete(&RecordModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func recordsToDomain(models []RecordModel) []domain.Record {
	records := make([]domain.Record, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}
	return records
}
