package app

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Locker serializes the daily refresh across processes
type Locker interface {
	WithLock(ctx context.Context, fn func() error) error
	Key() int64
}

// FreshnessStore answers whether today's refresh already ran
type FreshnessStore interface {
	LatestInsightAt(ctx context.Context, zoneIDs []string) (*time.Time, error)
	LatestExpertRecommendationAt(ctx context.Context, zoneIDs []string) (*time.Time, error)
}

// InsightJob regenerates insights for a zone set
type InsightJob interface {
	RefreshInsights(ctx context.Context, zoneIDs []string) error
}

// RecommendationJob regenerates expert recommendations for a zone set
type RecommendationJob interface {
	RefreshRecommendations(ctx context.Context, zoneIDs []string) error
}

// RefreshReport describes one refresh attempt
type RefreshReport struct {
	Ran         bool              `json:"ran"`
	Forced      bool              `json:"forced"`
	Reason      string            `json:"reason,omitempty"`
	Zones       []string          `json:"zones,omitempty"`
	JobErrors   map[string]string `json:"job_errors,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// RefreshCoordinator runs the daily insight and recommendation refresh at
// most once per UTC day across every process instance.
//
// The fast path checks freshness without the lock; the check repeats after
// acquisition because another instance may have completed the refresh while
// this one was waiting.
type RefreshCoordinator struct {
	store           FreshnessStore
	locker          Locker
	insights        InsightJob
	recommendations RecommendationJob

	now func() time.Time
}

// NewRefreshCoordinator creates a refresh coordinator
func NewRefreshCoordinator(store FreshnessStore, locker Locker, insights InsightJob, recommendations RecommendationJob) *RefreshCoordinator {
	return &RefreshCoordinator{
		store:           store,
		locker:          locker,
		insights:        insights,
		recommendations: recommendations,
		now:             time.Now,
	}
}

// Refresh runs the daily refresh for the given zones. With force=false a
// refresh that already ran today is skipped and sub-job failures are logged
// but swallowed; with force=true the freshness check is bypassed and any
// sub-job failure fails the whole call.
func (c *RefreshCoordinator) Refresh(ctx context.Context, zoneIDs []string, force bool) (*RefreshReport, error) {
	if len(zoneIDs) == 0 {
		return nil, fmt.Errorf("no zones to refresh")
	}

	report := &RefreshReport{
		Forced: force,
		Zones:  zoneIDs,
	}

	if !force {
		fresh, err := c.isFreshToday(ctx, zoneIDs)
		if err != nil {
			return nil, err
		}
		if fresh {
			report.Reason = "already refreshed today"
			report.CompletedAt = c.now().UTC()
			return report, nil
		}
	}

	err := c.locker.WithLock(ctx, func() error {
		// Another instance may have refreshed while we waited on the lock
		if !force {
			fresh, err := c.isFreshToday(ctx, zoneIDs)
			if err != nil {
				return err
			}
			if fresh {
				report.Reason = "refreshed by another instance"
				return nil
			}
		}

		report.Ran = true
		report.JobErrors = map[string]string{}

		// Sub-jobs are isolated: a failing job never blocks the others
		if err := c.insights.RefreshInsights(ctx, zoneIDs); err != nil {
			log.Printf("❌ Insight refresh failed: %v", err)
			report.JobErrors["insights"] = err.Error()
		}
		if err := c.recommendations.RefreshRecommendations(ctx, zoneIDs); err != nil {
			log.Printf("❌ Recommendation refresh failed: %v", err)
			report.JobErrors["recommendations"] = err.Error()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.CompletedAt = c.now().UTC()

	if force && len(report.JobErrors) > 0 {
		return report, fmt.Errorf("forced refresh completed with %d failed jobs", len(report.JobErrors))
	}
	if report.Ran {
		log.Printf("✅ Daily refresh completed for %d zones (%d job errors)", len(zoneIDs), len(report.JobErrors))
	}
	return report, nil
}

// isFreshToday reports whether both insight and expert-recommendation data
// were generated today (UTC). Missing data on either side means stale.
func (c *RefreshCoordinator) isFreshToday(ctx context.Context, zoneIDs []string) (bool, error) {
	startOfToday := c.now().UTC().Truncate(24 * time.Hour)

	insightAt, err := c.store.LatestInsightAt(ctx, zoneIDs)
	if err != nil {
		return false, err
	}
	if insightAt == nil || insightAt.Before(startOfToday) {
		return false, nil
	}

	recAt, err := c.store.LatestExpertRecommendationAt(ctx, zoneIDs)
	if err != nil {
		return false, err
	}
	if recAt == nil || recAt.Before(startOfToday) {
		return false, nil
	}
	return true, nil
}
