package notification

import "context"

// Repository defines persistence for reminder records.
type Repository interface {
	// Append persists all records in a single transaction and fills in their
	// IDs and creation timestamps.
	Append(ctx context.Context, records []*Record) error
	// UnreadExists reports whether an unread record with the same dedup
	// identity is already persisted. This is the durable half of the
	// exactly-once guarantee; it must hold across process restarts.
	UnreadExists(ctx context.Context, caseID int64, itemName, message string) (bool, error)
	MarkRead(ctx context.Context, id int64) error
	// ClearRead bulk-deletes all read records.
	ClearRead(ctx context.Context) (int64, error)
	ListUnreadByAgent(ctx context.Context, agentName string) ([]*Record, error)
}
