package repo

import (
	"gorm.io/gorm"

	"github.com/tbourn/go-challenge-backend/internal/domain"
)

// Models lists every persisted entity in migration order.
func Models() []any {
	return []any{
		&domain.Challenge{},
		&domain.Evaluation{},
		&domain.Progress{},
		&domain.Recommendation{},
		&domain.JourneyEvent{},
		&domain.Idempotency{},
	}
}

// AutoMigrate creates or updates the schema for all entities.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
