package casefile

import (
	"context"
	"time"

	"visa_case_bot/internal/domain/cycle"
)

// Repository defines the read surface the core needs over persisted cases.
// Case records themselves are created and mutated by the CRUD layer; the core
// treats every read as a snapshot and must tolerate concurrent external writes.
type Repository interface {
	// FindEligible returns the active, non-suppressed cases assigned to the
	// agent, ordered by case id ascending (oldest first). For the critical
	// track only CRITICAL-flagged cases are returned.
	FindEligible(ctx context.Context, agentName string, track cycle.Track) ([]*Case, error)
	FindByID(ctx context.Context, id int64) (*Case, error)
	// HasCommentToday reports whether the agent logged a comment on the case
	// on the same calendar day as `day`.
	HasCommentToday(ctx context.Context, caseID int64, author string, day time.Time) (bool, error)
	// FindWithOpenDeadlines returns every case holding at least one PENDING
	// commitment or PENDING critical highlight, with those items populated.
	FindWithOpenDeadlines(ctx context.Context) ([]*Case, error)

	// SetCommitmentStatus and SetHighlightStatus flip an item's status.
	// The item's UpdatedAt timestamp moves only when the value actually changes.
	SetCommitmentStatus(ctx context.Context, commitmentID int64, status ItemStatus) error
	SetHighlightStatus(ctx context.Context, highlightID int64, status ItemStatus) error
}
