package models

// Severity mirrors the toast variants shown to the user.
type Severity string

const (
	SeverityInfo        Severity = "info"
	SeverityDestructive Severity = "destructive"
)

// Notification is a fire-and-forget message presented to the user.
type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// SyncResult summarizes one call to SyncPendingActions.
type SyncResult struct {
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}
