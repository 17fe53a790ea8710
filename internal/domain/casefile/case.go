package casefile

import "time"

// Flag classifies a case's criticality.
type Flag string

const (
	FlagNormal   Flag = "NORMAL"
	FlagCritical Flag = "CRITICAL"
	FlagOther    Flag = "OTHER"
)

// Stage indicates whether a case is actively being worked.
type Stage string

const (
	StageActive   Stage = "ACTIVE"
	StageInactive Stage = "INACTIVE"
)

// ItemStatus is the resolution state of a commitment or critical highlight.
type ItemStatus string

const (
	StatusPending  ItemStatus = "PENDING"
	StatusDone     ItemStatus = "DONE"     // commitments
	StatusResolved ItemStatus = "RESOLVED" // critical highlights
)

// Case is a client visa case. Owned and mutated by the CRUD/REST layer;
// the core reads it through Repository.
type Case struct {
	ID          int64
	CaseNo      string // human-facing file number, e.g. "VC-2041"
	ClientName  string
	AssignedCSS string
	Stage       Stage
	Flag        Flag
	Suppressed  bool // explicitly excluded from batching
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Populated only by the open-deadline query.
	Commitments []Commitment
	Highlights  []CriticalHighlight
}

// Commitment is a promise made to the client with a hard deadline.
type Commitment struct {
	ID          int64
	CaseID      int64
	Description string
	Deadline    time.Time
	Status      ItemStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time // moves only when Status actually changes
}

// CriticalHighlight is a red-flag note on a case with an expiry date.
type CriticalHighlight struct {
	ID          int64
	CaseID      int64
	Description string
	Expiry      time.Time
	Status      ItemStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time // moves only when Status actually changes
}

// Comment is one entry in a case's activity log.
type Comment struct {
	ID        int64
	CaseID    int64
	Text      string
	Author    string
	CreatedAt time.Time
}
