// Package migration keeps the database schema up to date.
package migration

import (
	"fmt"

	"gorm.io/gorm"

	"confgive/internal/infrastructure/persistence/models"
	"confgive/internal/shared/logger"
)

// Run migrates the donation schema.
func Run(db *gorm.DB) error {
	log := logger.WithComponent("migration")

	log.Info("starting database migration")

	if err := db.AutoMigrate(&models.GivingModel{}); err != nil {
		return fmt.Errorf("failed to migrate giving table: %w", err)
	}

	log.Info("database migration completed")
	return nil
}
