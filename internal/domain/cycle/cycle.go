package cycle

import (
	"fmt"
	"time"
)

// Track separates the two batching rotations an agent works through.
type Track string

const (
	TrackStandard Track = "STANDARD"
	TrackCritical Track = "CRITICAL"
)

// BatchEntry is one case inside a batch. ClientName is a snapshot taken at
// allocation time; Medium is the contact-medium annotation the agent records
// while working the batch (required before the critical track progresses).
type BatchEntry struct {
	CaseID     int64  `json:"case_id"`
	CaseNo     string `json:"case_no"`
	ClientName string `json:"client_name,omitempty"`
	Medium     string `json:"medium,omitempty"`
}

// Batch is one unit of work issued to an agent.
type Batch struct {
	CreatedAt time.Time    `json:"created_at"`
	Entries   []BatchEntry `json:"entries"`
}

// Cycle is one full pass over the agent's eligible pool. Within a cycle a
// case appears in at most one batch; identifiers may recur across cycles.
type Cycle struct {
	Number  int      `json:"number"` // monotonic, starts at 1
	Batches []*Batch `json:"batches"`
}

// State is the per-(agent, track) batching aggregate. It is persisted and
// reloaded as a whole; ordering of cycles, batches and entries is significant.
type State struct {
	Agent  string   `json:"agent"`
	Track  Track    `json:"track"`
	Cycles []*Cycle `json:"cycles"`

	// Version supports optimistic concurrency in the store; zero means the
	// state has never been persisted.
	Version int `json:"-"`
}

// NewState creates the lazily-initialized state for an agent's first batch
// request: cycle 1, no batches yet.
func NewState(agentName string, track Track) *State {
	return &State{
		Agent:  agentName,
		Track:  track,
		Cycles: []*Cycle{{Number: 1}},
	}
}

// CurrentCycle returns the last (active) cycle.
func (s *State) CurrentCycle() *Cycle {
	if len(s.Cycles) == 0 {
		return nil
	}
	return s.Cycles[len(s.Cycles)-1]
}

// LastBatch returns the most recently issued batch of the current cycle,
// or nil when the cycle has none.
func (s *State) LastBatch() *Batch {
	c := s.CurrentCycle()
	if c == nil || len(c.Batches) == 0 {
		return nil
	}
	return c.Batches[len(c.Batches)-1]
}

// UsedCaseIDs returns the union of case ids across all batches of the cycle.
func (c *Cycle) UsedCaseIDs() map[int64]struct{} {
	used := make(map[int64]struct{})
	for _, b := range c.Batches {
		for _, e := range b.Entries {
			used[e.CaseID] = struct{}{}
		}
	}
	return used
}

// Validate checks the in-cycle uniqueness invariant: a case id must not
// appear in more than one batch of the same cycle.
func (s *State) Validate() error {
	for _, c := range s.Cycles {
		seen := make(map[int64]int)
		for bi, b := range c.Batches {
			for _, e := range b.Entries {
				if prev, ok := seen[e.CaseID]; ok {
					return fmt.Errorf("case %d appears in batches %d and %d of cycle %d", e.CaseID, prev+1, bi+1, c.Number)
				}
				seen[e.CaseID] = bi
			}
		}
	}
	return nil
}
