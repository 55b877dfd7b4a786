package domain

import (
	"fmt"
	"strings"
	"time"
)

// SyncState represents the replication lifecycle state of a record.
type SyncState string

const (
	StatePending         SyncState = "PENDING"
	StateQueued          SyncState = "QUEUED"
	StateInProgress      SyncState = "IN_PROGRESS"
	StateSynced          SyncState = "SYNCED"
	StateFailedPermanent SyncState = "FAILED_PERMANENT"
)

func (s SyncState) String() string { return string(s) }

func (s SyncState) IsValid() bool {
	switch s {
	case StatePending, StateQueued, StateInProgress, StateSynced, StateFailedPermanent:
		return true
	}
	return false
}

// IsTerminal reports whether the state is no longer picked up by automatic sync.
func (s SyncState) IsTerminal() bool {
	return s == StateSynced || s == StateFailedPermanent
}

func ParseSyncStateFromString(s string) (SyncState, error) {
	st := SyncState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid sync state %q", ErrValidation, s)
	}
	return st, nil
}

// Record is one locally captured attendance event awaiting or having
// completed replication to the cloud store. It is created exactly once at
// capture time and mutated only through compare-and-set state transitions.
type Record struct {
	LocalID           uint64    `gorm:"primaryKey;autoIncrement"`
	EntityID          string    `gorm:"type:varchar(64);not null"`
	DeviceID          string    `gorm:"type:varchar(64);not null"`
	CapturedAt        time.Time `gorm:"not null"`
	Payload           string    `gorm:"type:text"`
	DedupKey          string    `gorm:"type:varchar(255);not null"`
	ArtifactLocalPath *string   `gorm:"type:varchar(512)"`
	ArtifactRemoteURL *string   `gorm:"type:varchar(512)"`
	RemoteID          *string   `gorm:"type:varchar(64)"`
	SyncState         SyncState `gorm:"type:varchar(20);not null"`
	RetryCount        int       `gorm:"not null;default:0"`
	LastError         *string   `gorm:"type:text"`
	LastAttemptAt     *time.Time
	NextEligibleAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r *Record) Validate() error {
	if strings.TrimSpace(r.EntityID) == "" {
		return fmt.Errorf("%w: entity id is required", ErrValidation)
	}
	if strings.TrimSpace(r.DeviceID) == "" {
		return fmt.Errorf("%w: device id is required", ErrValidation)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("%w: captured at is required", ErrValidation)
	}
	if r.SyncState != "" && !r.SyncState.IsValid() {
		return fmt.Errorf("%w: invalid sync state %q", ErrValidation, r.SyncState)
	}
	return nil
}

// HasArtifact reports whether a local artifact file still needs remote upload.
func (r *Record) HasArtifact() bool {
	return r.ArtifactLocalPath != nil && strings.TrimSpace(*r.ArtifactLocalPath) != ""
}

// BuildDedupKey derives the natural key the cloud endpoint uses for
// idempotent record creation. Captured-at is truncated to the second so the
// same capture replayed from disk produces the same key.
func BuildDedupKey(entityID string, capturedAt time.Time, deviceID string) string {
	return fmt.Sprintf("%s:%d:%s",
		strings.TrimSpace(entityID),
		capturedAt.UTC().Unix(),
		strings.TrimSpace(deviceID),
	)
}
