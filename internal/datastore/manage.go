package datastore

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/heatwatch/heatwatch-go/internal/errors"
)

// performAutoMigration creates or updates the schema for all persisted
// models.
func performAutoMigration(db *gorm.DB, log *slog.Logger) error {
	start := time.Now()

	if err := db.AutoMigrate(&Transformer{}, &Inspection{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}

	if log != nil {
		log.Debug("database migration complete",
			"duration", time.Since(start))
	}
	return nil
}
