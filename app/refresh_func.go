package app

import (
	"context"
	"fmt"

	"parking-analyst/api"
	"parking-analyst/notifications"
)

// eventBroadcaster pushes events to connected dashboard clients
type eventBroadcaster interface {
	Broadcast(event string, payload interface{})
}

// webhookNotifier delivers events to registered webhook destinations
type webhookNotifier interface {
	Notify(event, zoneID, message string, detail interface{})
}

// newRefreshFunc adapts the coordinator for the API layer. The completion
// event fires only for a run where every sub-job succeeded; a refresh that
// ran with job failures still returns its report but is never announced as
// completed.
func newRefreshFunc(c *RefreshCoordinator, broker eventBroadcaster, hooks webhookNotifier) api.RefreshFunc {
	return func(ctx context.Context, zoneIDs []string, force bool) (interface{}, error) {
		report, err := c.Refresh(ctx, zoneIDs, force)
		if report == nil {
			return nil, err
		}
		if err == nil && report.Ran && len(report.JobErrors) == 0 {
			broker.Broadcast("refresh.completed", report)
			hooks.Notify(notifications.EventRefreshCompleted, "",
				fmt.Sprintf("Daily refresh completed for %d zones", len(report.Zones)), report)
		}
		return report, err
	}
}
