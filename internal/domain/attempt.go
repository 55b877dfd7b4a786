package domain

import "time"

// SyncAttempt records a single replication attempt for a record.
type SyncAttempt struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	RecordLocalID uint64  `gorm:"not null"`
	AttemptNumber int     `gorm:"not null"`
	Endpoint      string  `gorm:"type:varchar(40)"`
	StatusCode    *int    `gorm:"type:int"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}
