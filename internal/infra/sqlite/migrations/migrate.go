package migrations

import (
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_records",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.RecordModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_records_state ON records (sync_state)`,
					`CREATE INDEX IF NOT EXISTS idx_records_due ON records (next_eligible_at) WHERE sync_state = 'QUEUED'`,
					`CREATE INDEX IF NOT EXISTS idx_records_dedup_key ON records (dedup_key)`,
					`CREATE INDEX IF NOT EXISTS idx_records_entity_captured ON records (entity_id, captured_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RecordModel{})
			},
		},
		{
			ID: "000002_create_sync_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.SyncAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_sync_attempts_record_id ON sync_attempts (record_local_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SyncAttemptModel{})
			},
		},
	})

	return m.Migrate()
}
