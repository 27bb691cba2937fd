// Package experiments is the persistence layer for elasticity probe
// experiments, their arms, and evaluated results.
package experiments

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-analyst/database"
)

// Repository provides experiment persistence operations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates an experiment repository
func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db.DB()}
}

// CreateExperimentWithArms inserts the experiment and its arms in one
// transaction so a failure never leaves an armless experiment behind
func (r *Repository) CreateExperimentWithArms(ctx context.Context, exp *database.PricingExperiment, arms []database.PricingExperimentArm) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exp).Error; err != nil {
			return err
		}
		if len(arms) > 0 {
			if err := tx.Create(&arms).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return database.WrapDBError("create experiment", err)
	}
	return nil
}

// GetExperiment fetches one experiment by ID
func (r *Repository) GetExperiment(ctx context.Context, id string) (*database.PricingExperiment, error) {
	var exp database.PricingExperiment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&exp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.NewNotFoundErrorWithID("experiment", id)
		}
		return nil, database.WrapDBError("fetch experiment", err)
	}
	return &exp, nil
}

// GetArms returns the experiment's arms ordered by delta, control first
// among equals by construction (control delta is zero)
func (r *Repository) GetArms(ctx context.Context, experimentID string) ([]database.PricingExperimentArm, error) {
	var arms []database.PricingExperimentArm
	err := r.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("delta ASC").
		Find(&arms).Error
	if err != nil {
		return nil, database.WrapDBError("fetch experiment arms", err)
	}
	return arms, nil
}

// ListFilter narrows an experiment listing. ZoneIDs is the caller's
// entitlement set and is always applied.
type ListFilter struct {
	ZoneIDs []string
	Zone    string
	Status  string
	Limit   int
}

// ListExperiments returns experiments restricted to the filter's zone
// entitlements, newest first
func (r *Repository) ListExperiments(ctx context.Context, filter ListFilter) ([]database.PricingExperiment, error) {
	query := r.db.WithContext(ctx).
		Model(&database.PricingExperiment{}).
		Where("zone_id = ANY(?)", pq.Array(filter.ZoneIDs))

	if filter.Zone != "" {
		query = query.Where("zone_id = ?", filter.Zone)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var experiments []database.PricingExperiment
	err := query.Order("created_at DESC").Limit(limit).Find(&experiments).Error
	if err != nil {
		return nil, database.WrapDBError("list experiments", err)
	}
	return experiments, nil
}

// UpsertResult writes one evaluated result keyed by (experiment, arm,
// window). Re-evaluating the same window overwrites the metrics and bumps
// computed_at instead of inserting a duplicate row.
func (r *Repository) UpsertResult(ctx context.Context, result *database.PricingExperimentResult) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "experiment_id"},
				{Name: "arm_id"},
				{Name: "metric_window"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"rev_psh", "occupancy", "lift_rev_psh", "lift_occupancy", "computed_at",
			}),
		}).
		Create(result).Error
	if err != nil {
		return database.WrapDBError("upsert experiment result", err)
	}
	return nil
}

// ListResults returns all evaluated results for an experiment
func (r *Repository) ListResults(ctx context.Context, experimentID string) ([]database.PricingExperimentResult, error) {
	var results []database.PricingExperimentResult
	err := r.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("metric_window ASC, arm_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, database.WrapDBError("fetch experiment results", err)
	}
	return results, nil
}

// MarkRunning advances scheduled experiments whose window has opened
func (r *Repository) MarkRunning(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&database.PricingExperiment{}).
		Where("status = ? AND created_at <= ?", database.ExperimentStatusScheduled, now).
		Update("status", database.ExperimentStatusRunning)
	if result.Error != nil {
		return 0, database.WrapDBError("mark experiments running", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkComplete advances running experiments whose horizon has elapsed
func (r *Repository) MarkComplete(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&database.PricingExperiment{}).
		Where("status = ? AND ends_at <= ?", database.ExperimentStatusRunning, now).
		Update("status", database.ExperimentStatusComplete)
	if result.Error != nil {
		return 0, database.WrapDBError("mark experiments complete", result.Error)
	}
	return result.RowsAffected, nil
}
