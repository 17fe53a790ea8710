package cycle

import "context"

// Store is the persistence abstraction over State, keyed by (agent, track).
// It carries no business logic; last-write-wins with an optimistic version
// check on Save.
type Store interface {
	Load(ctx context.Context, agentName string, track Track) (*State, error)
	Save(ctx context.Context, state *State) error
	// ListByTrack returns every persisted state on the track, for projections
	// such as the completion-order report.
	ListByTrack(ctx context.Context, track Track) ([]*State, error)
}
