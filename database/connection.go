package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ananth-NQI/menuchat-backend/internal/config"
	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// Connect opens the Postgres connection described by conf.
func Connect(conf config.DatabaseConfig) (*gorm.DB, error) {
	if conf.InstanceConnectionName != "" {
		log.Info().Str("instance", conf.InstanceConnectionName).Msg("connecting to Cloud SQL via socket")
	} else {
		log.Info().Str("host", conf.Host).Int("port", conf.Port).Msg("connecting to local PostgreSQL")
	}

	db, err := gorm.Open(postgres.Open(conf.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log.Info().Msg("database connected")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Tenant{},
		&models.MenuItem{},
		&models.SizePrice{},
		&models.Drink{},
		&models.AllowListEntry{},
		&models.Order{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
