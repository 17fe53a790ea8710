package notification

import "time"

// Type identifies which kind of deadline a record reminds about.
type Type string

const (
	TypeCommitment        Type = "COMMITMENT"
	TypeCriticalHighlight Type = "CRITICAL_HIGHLIGHT"
)

// Record is one persisted reminder. The at-most-once contract: no two unread
// records may share the same (CaseID, ItemName, Message).
type Record struct {
	ID         int64
	Type       Type
	CaseID     int64
	CaseNo     string
	ClientName string
	AgentName  string
	ItemName   string // item description with its rendered deadline
	Message    string
	Deadline   time.Time
	Read       bool
	CreatedAt  time.Time
}
