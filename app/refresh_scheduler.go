package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"parking-analyst/config"
)

// ZoneResolver discovers which zones the scheduled refresh should cover
type ZoneResolver interface {
	DistinctTransactionZones(ctx context.Context) ([]string, error)
}

// RefreshScheduler triggers the daily refresh on a cron schedule, plus one
// best-effort refresh at startup so a restarted instance never serves a full
// day of stale data
type RefreshScheduler struct {
	coordinator *RefreshCoordinator
	resolver    ZoneResolver
	cfg         *config.SchedulerConfig
	devZones    []string
	cron        *cron.Cron
}

// NewRefreshScheduler creates a refresh scheduler
func NewRefreshScheduler(coordinator *RefreshCoordinator, resolver ZoneResolver, cfg *config.SchedulerConfig, devZones []string) *RefreshScheduler {
	return &RefreshScheduler{
		coordinator: coordinator,
		resolver:    resolver,
		cfg:         cfg,
		devZones:    devZones,
	}
}

// Start registers the cron entry and fires the startup refresh
func (rs *RefreshScheduler) Start() error {
	spec := fmt.Sprintf("%d %d * * *", rs.cfg.RefreshMinuteUTC, rs.cfg.RefreshHourUTC)

	rs.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := rs.cron.AddFunc(spec, rs.runScheduled); err != nil {
		return fmt.Errorf("register refresh cron: %w", err)
	}
	rs.cron.Start()
	log.Printf("⏰ Daily refresh scheduled at %02d:%02d UTC", rs.cfg.RefreshHourUTC, rs.cfg.RefreshMinuteUTC)

	// Startup refresh is best-effort and non-forced: if today's refresh
	// already happened it no-ops
	go rs.runStartup()
	return nil
}

// Stop halts the cron scheduler, waiting for a running entry to finish
func (rs *RefreshScheduler) Stop() {
	if rs.cron != nil {
		<-rs.cron.Stop().Done()
		log.Println("⏰ Refresh scheduler stopped")
	}
}

func (rs *RefreshScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	zones, err := rs.resolveZones(ctx)
	if err != nil {
		log.Printf("❌ Scheduled refresh could not resolve zones: %v", err)
		return
	}

	// Scheduled runs force so failures surface in the logs
	report, err := rs.coordinator.Refresh(ctx, zones, true)
	if err != nil {
		log.Printf("❌ Scheduled refresh failed: %v", err)
		return
	}
	log.Printf("⏰ Scheduled refresh done: ran=%v zones=%d", report.Ran, len(report.Zones))
}

func (rs *RefreshScheduler) runStartup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	zones, err := rs.resolveZones(ctx)
	if err != nil {
		log.Printf("⚠️ Startup refresh could not resolve zones: %v", err)
		return
	}

	if _, err := rs.coordinator.Refresh(ctx, zones, false); err != nil {
		log.Printf("⚠️ Startup refresh failed: %v", err)
	}
}

// resolveZones prefers the configured zone set, then zones discovered from
// transaction data, then the dev defaults
func (rs *RefreshScheduler) resolveZones(ctx context.Context) ([]string, error) {
	if len(rs.cfg.ZoneIDs) > 0 {
		return rs.cfg.ZoneIDs, nil
	}

	discovered, err := rs.resolver.DistinctTransactionZones(ctx)
	if err != nil {
		return nil, err
	}
	if len(discovered) > 0 {
		return discovered, nil
	}
	return rs.devZones, nil
}
