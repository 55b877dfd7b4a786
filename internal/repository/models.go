package repository

import (
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
)

// RecordModel is the persistence model for the records table.
type RecordModel struct {
	LocalID           uint64           `gorm:"primaryKey;autoIncrement"`
	EntityID          string           `gorm:"type:varchar(64);not null"`
	DeviceID          string           `gorm:"type:varchar(64);not null"`
	CapturedAt        time.Time        `gorm:"not null"`
	Payload           string           `gorm:"type:text"`
	DedupKey          string           `gorm:"type:varchar(255);not null"`
	ArtifactLocalPath *string          `gorm:"type:varchar(512)"`
	ArtifactRemoteURL *string          `gorm:"type:varchar(512)"`
	RemoteID          *string          `gorm:"type:varchar(64)"`
	SyncState         domain.SyncState `gorm:"type:varchar(20);not null"`
	RetryCount        int              `gorm:"not null;default:0"`
	LastError         *string          `gorm:"type:text"`
	LastAttemptAt     *time.Time
	NextEligibleAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (RecordModel) TableName() string {
	return "records"
}

// SyncAttemptModel is the persistence model for sync_attempts.
type SyncAttemptModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	RecordLocalID uint64  `gorm:"not null"`
	AttemptNumber int     `gorm:"not null"`
	Endpoint      string  `gorm:"type:varchar(40)"`
	StatusCode    *int    `gorm:"type:int"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (SyncAttemptModel) TableName() string {
	return "sync_attempts"
}

func recordModelFromDomain(r *domain.Record) *RecordModel {
	if r == nil {
		return nil
	}

	return &RecordModel{
		LocalID:           r.LocalID,
		EntityID:          r.EntityID,
		DeviceID:          r.DeviceID,
		CapturedAt:        r.CapturedAt,
		Payload:           r.Payload,
		DedupKey:          r.DedupKey,
		ArtifactLocalPath: r.ArtifactLocalPath,
		ArtifactRemoteURL: r.ArtifactRemoteURL,
		RemoteID:          r.RemoteID,
		SyncState:         r.SyncState,
		RetryCount:        r.RetryCount,
		LastError:         r.LastError,
		LastAttemptAt:     r.LastAttemptAt,
		NextEligibleAt:    r.NextEligibleAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func recordModelToDomain(m *RecordModel) *domain.Record {
	if m == nil {
		return nil
	}

	return &domain.Record{
		LocalID:           m.LocalID,
		EntityID:          m.EntityID,
		DeviceID:          m.DeviceID,
		CapturedAt:        m.CapturedAt,
		Payload:           m.Payload,
		DedupKey:          m.DedupKey,
		ArtifactLocalPath: m.ArtifactLocalPath,
		ArtifactRemoteURL: m.ArtifactRemoteURL,
		RemoteID:          m.RemoteID,
		SyncState:         m.SyncState,
		RetryCount:        m.RetryCount,
		LastError:         m.LastError,
		LastAttemptAt:     m.LastAttemptAt,
		NextEligibleAt:    m.NextEligibleAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.SyncAttempt) *SyncAttemptModel {
	if a == nil {
		return nil
	}

	return &SyncAttemptModel{
		ID:            a.ID,
		RecordLocalID: a.RecordLocalID,
		AttemptNumber: a.AttemptNumber,
		Endpoint:      a.Endpoint,
		StatusCode:    a.StatusCode,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *SyncAttemptModel) *domain.SyncAttempt {
	if m == nil {
		return nil
	}

	return &domain.SyncAttempt{
		ID:            m.ID,
		RecordLocalID: m.RecordLocalID,
		AttemptNumber: m.AttemptNumber,
		Endpoint:      m.Endpoint,
		StatusCode:    m.StatusCode,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
