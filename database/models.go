// Package database provides database connection management for the
// parking-analyst pricing analytics service.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Typed error taxonomy shared by all repositories
//   - A session-pinned advisory mutex for cross-process coordination
//
// Data Models:
//
//	All data models (Zone, PricingExperiment, PriceChange, etc.) are defined
//	in the models_pkg package to avoid circular import dependencies.
//	Domain repositories live in the changes, experiments, guardrails and
//	metrics sub-packages.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "parking-analyst/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance. It serves as the central connection point for all
// database operations in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host, port, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ============================================================================
// Type Aliases
// ============================================================================

// Core data models - type aliases so callers can keep importing database
// directly without reaching into models_pkg.

type Zone = models.Zone
type HistoricalTransaction = models.HistoricalTransaction
type Insight = models.Insight
type Recommendation = models.Recommendation
type PriceChange = models.PriceChange
type AgentGuardrail = models.AgentGuardrail
type PricingExperiment = models.PricingExperiment
type PricingExperimentArm = models.PricingExperimentArm
type PricingExperimentResult = models.PricingExperimentResult
type CopilotThread = models.CopilotThread
type CopilotMessage = models.CopilotMessage
type CopilotMemory = models.CopilotMemory
type AlertWebhook = models.AlertWebhook
type AlertWebhookLog = models.AlertWebhookLog
