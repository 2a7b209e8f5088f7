package config

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alfredoptarigan/talent-match/internal/models"
)

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := cfg.GetDatabaseDSN()

	logLevel := logger.Silent
	if cfg.Server.Env == "development" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("✅ Database connected successfully")

	// Auto migrate
	if err := db.AutoMigrate(
		&models.Candidate{},
		&models.Provenance{},
		&models.MergeLineageEdge{},
		&models.ResumeDocument{},
		&models.IngestionJob{},
		&models.AuditLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Full-text index over skills + raw text; this backs lexical recall.
	// AutoMigrate cannot express an expression index, so it is created here.
	ftsIndex := `
		CREATE INDEX IF NOT EXISTS idx_candidates_fts
		ON candidates
		USING GIN (to_tsvector('simple', coalesce(skills::text, '') || ' ' || coalesce(raw_text, '')))
	`
	if err := db.Exec(ftsIndex).Error; err != nil {
		return nil, fmt.Errorf("failed to create full-text index: %w", err)
	}

	log.Println("✅ Database migration completed")

	return db, nil
}
