// Package changes is the persistence layer for price change records and
// their pending/applied/reverted lifecycle.
package changes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"parking-analyst/database"
)

// Repository provides price change persistence operations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a price change repository
func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db.DB()}
}

// ListFilter narrows a price change listing. ZoneIDs is the caller's
// entitlement set and is always applied; Zone and Status are optional.
type ListFilter struct {
	ZoneIDs []string
	Zone    string
	Status  string
	Limit   int
	Offset  int
}

// Create persists a new price change in pending state
func (r *Repository) Create(ctx context.Context, change *database.PriceChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.Status == "" {
		change.Status = database.ChangeStatusPending
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(change).Error; err != nil {
		return database.WrapDBError("create price change", err)
	}
	return nil
}

// GetByID fetches one price change
func (r *Repository) GetByID(ctx context.Context, id string) (*database.PriceChange, error) {
	var change database.PriceChange
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&change).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.NewNotFoundErrorWithID("price change", id)
		}
		return nil, database.WrapDBError("fetch price change", err)
	}
	return &change, nil
}

// List returns price changes restricted to the filter's zone entitlements,
// newest first, along with the total count for pagination
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]database.PriceChange, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&database.PriceChange{}).
		Where("zone_id = ANY(?)", pq.Array(filter.ZoneIDs))

	if filter.Zone != "" {
		query = query.Where("zone_id = ?", filter.Zone)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, database.WrapDBError("count price changes", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var results []database.PriceChange
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&results).Error
	if err != nil {
		return nil, 0, database.WrapDBError("list price changes", err)
	}
	return results, total, nil
}

// Apply transitions a pending change to applied and records who applied it
func (r *Repository) Apply(ctx context.Context, id, userID string) (*database.PriceChange, error) {
	change, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.Status != database.ChangeStatusPending {
		return nil, database.NewValidationError("status", "only pending changes can be applied")
	}

	now := time.Now().UTC()
	change.Status = database.ChangeStatusApplied
	change.AppliedBy = &userID
	change.AppliedAt = &now

	err = r.db.WithContext(ctx).
		Model(&database.PriceChange{}).
		Where("id = ? AND status = ?", id, database.ChangeStatusPending).
		Updates(map[string]interface{}{
			"status":     database.ChangeStatusApplied,
			"applied_by": userID,
			"applied_at": now,
		}).Error
	if err != nil {
		return nil, database.WrapDBError("apply price change", err)
	}
	return change, nil
}

// Revert transitions an applied change back to reverted
func (r *Repository) Revert(ctx context.Context, id, userID string) (*database.PriceChange, error) {
	change, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.Status != database.ChangeStatusApplied {
		return nil, database.NewValidationError("status", "only applied changes can be reverted")
	}

	change.Status = database.ChangeStatusReverted

	err = r.db.WithContext(ctx).
		Model(&database.PriceChange{}).
		Where("id = ? AND status = ?", id, database.ChangeStatusApplied).
		Update("status", database.ChangeStatusReverted).Error
	if err != nil {
		return nil, database.WrapDBError("revert price change", err)
	}
	return change, nil
}
