package database

import (
	"fmt"

	"salon-billing/config"
	"salon-billing/internal/infra/gormstore"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to postgres, or to a local sqlite file when no DB_URL is set,
// and migrates the schema.
func Open(cfg config.Config, log zerolog.Logger) (*gorm.DB, error) {
	dialector := postgres.Open(cfg.DBURL)
	if cfg.DBURL == "" {
		log.Warn().Str("path", cfg.DBPath).Msg("DB_URL not set, using sqlite")
		dialector = sqlite.Open(cfg.DBPath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := gormstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Msg("Connected and migrated successfully")
	return db, nil
}
