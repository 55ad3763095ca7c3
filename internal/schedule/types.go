package schedule

import (
	"time"
)

// OverlapBehavior defines what to do when a watch fires while its previous
// run is still going.
type OverlapBehavior string

const (
	OverlapSkip     OverlapBehavior = "skip"     // don't start while the previous run is active
	OverlapParallel OverlapBehavior = "parallel" // allow concurrent runs
)

// Watch is a command executed on a cron cadence against an inventory target.
type Watch struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CronExpr        string          `json:"cron_expr"` // standard 5-field cron expression
	Target          string          `json:"target"`    // host, group or glob, resolved against the inventory
	Command         string          `json:"command"`
	Powershell      bool            `json:"powershell"` // run through powershell -encodedCommand
	Enabled         bool            `json:"enabled"`
	OverlapBehavior OverlapBehavior `json:"overlap_behavior"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastRunAt       *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time      `json:"next_run_at,omitempty"`
}

// WatchUpdate contains optional fields for updating a watch.
type WatchUpdate struct {
	Name            *string          `json:"name,omitempty"`
	CronExpr        *string          `json:"cron_expr,omitempty"`
	Target          *string          `json:"target,omitempty"`
	Command         *string          `json:"command,omitempty"`
	Powershell      *bool            `json:"powershell,omitempty"`
	Enabled         *bool            `json:"enabled,omitempty"`
	OverlapBehavior *OverlapBehavior `json:"overlap_behavior,omitempty"`
}

// IsValidOverlapBehavior checks if the overlap behavior is valid.
func IsValidOverlapBehavior(b OverlapBehavior) bool {
	return b == OverlapSkip || b == OverlapParallel
}
