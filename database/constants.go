package database

// Experiment lifecycle statuses
const (
	ExperimentStatusScheduled = "scheduled"
	ExperimentStatusRunning   = "running"
	ExperimentStatusComplete  = "complete"
	ExperimentStatusAborted   = "aborted"
)

// Price change lifecycle statuses
const (
	ChangeStatusPending  = "pending"
	ChangeStatusApplied  = "applied"
	ChangeStatusReverted = "reverted"
)

// Recommendation statuses
const (
	RecommendationStatusProposed  = "proposed"
	RecommendationStatusApproved  = "approved"
	RecommendationStatusDismissed = "dismissed"
)

// Dayparts partition pricing and analysis into two buckets
const (
	DaypartMorning = "morning"
	DaypartEvening = "evening"
)

// Insight kinds
const (
	InsightKindVolume    = "volume"
	InsightKindDuration  = "duration"
	InsightKindRevenue   = "revenue"
	InsightKindPattern   = "pattern"
	InsightKindOccupancy = "occupancy"
	InsightKindSummary   = "summary"
)

// Insight severities
const (
	SeverityInfo    = "info"
	SeverityNotable = "notable"
	SeverityAction  = "action"
)

// Copilot thread statuses
const (
	ThreadStatusOpen   = "open"
	ThreadStatusClosed = "closed"
)

// Copilot message roles
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Copilot memory kinds: canonical rules, situational context, and noted
// exceptions distilled from analyst conversations
const (
	MemoryKindCanonical = "canonical"
	MemoryKindContext   = "context"
	MemoryKindException = "exception"
)

// DailyRefreshLockID identifies the system-wide advisory mutex guarding the
// daily insight/recommendation refresh. One well-known key shared by every
// process instance; this is NOT a per-zone lock.
const DailyRefreshLockID int64 = 918273645
