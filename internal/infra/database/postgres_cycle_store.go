package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"visa_case_bot/internal/domain/cycle"
)

var ErrCycleStateNotFound = fmt.Errorf("cycle state not found")
var ErrCycleStateConflict = fmt.Errorf("cycle state was modified concurrently")

// PostgresCycleStore persists each (agent, track) State as a whole JSONB
// document with an integer version column. Save is load-modify-store with an
// optimistic version check; array-element surgery in SQL is deliberately
// avoided so the aggregate invariants can be validated in memory first.
type PostgresCycleStore struct {
	db *sql.DB
}

func NewPostgresCycleStore(db *sql.DB) *PostgresCycleStore {
	return &PostgresCycleStore{db: db}
}

type stateDoc struct {
	Cycles []*cycle.Cycle `json:"cycles"`
}

func (s *PostgresCycleStore) Load(ctx context.Context, agentName string, track cycle.Track) (*cycle.State, error) {
	query := `SELECT state, version FROM cycle_states WHERE agent_name = $1 AND track = $2`
	var raw []byte
	var version int
	err := s.db.QueryRowContext(ctx, query, agentName, track).Scan(&raw, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCycleStateNotFound
		}
		return nil, fmt.Errorf("error loading cycle state: %w", err)
	}

	var doc stateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("error decoding cycle state document: %w", err)
	}
	return &cycle.State{Agent: agentName, Track: track, Cycles: doc.Cycles, Version: version}, nil
}

func (s *PostgresCycleStore) Save(ctx context.Context, state *cycle.State) error {
	raw, err := json.Marshal(stateDoc{Cycles: state.Cycles})
	if err != nil {
		return fmt.Errorf("error encoding cycle state document: %w", err)
	}

	if state.Version == 0 {
		query := `INSERT INTO cycle_states (agent_name, track, state, version)
                   VALUES ($1, $2, $3, 1)`
		if _, err := s.db.ExecContext(ctx, query, state.Agent, state.Track, raw); err != nil {
			return fmt.Errorf("error inserting cycle state: %w", err)
		}
		state.Version = 1
		return nil
	}

	query := `UPDATE cycle_states
               SET state = $1, version = version + 1, updated_at = NOW()
               WHERE agent_name = $2 AND track = $3 AND version = $4`
	res, err := s.db.ExecContext(ctx, query, raw, state.Agent, state.Track, state.Version)
	if err != nil {
		return fmt.Errorf("error updating cycle state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCycleStateConflict
	}
	state.Version++
	return nil
}

func (s *PostgresCycleStore) ListByTrack(ctx context.Context, track cycle.Track) ([]*cycle.State, error) {
	query := `SELECT agent_name, state, version FROM cycle_states WHERE track = $1 ORDER BY agent_name`
	rows, err := s.db.QueryContext(ctx, query, track)
	if err != nil {
		return nil, fmt.Errorf("error listing cycle states: %w", err)
	}
	defer rows.Close()

	states := make([]*cycle.State, 0)
	for rows.Next() {
		var agentName string
		var raw []byte
		var version int
		if err := rows.Scan(&agentName, &raw, &version); err != nil {
			return nil, fmt.Errorf("error scanning cycle state row: %w", err)
		}
		var doc stateDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("error decoding cycle state for agent %s: %w", agentName, err)
		}
		states = append(states, &cycle.State{Agent: agentName, Track: track, Cycles: doc.Cycles, Version: version})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle states: %w", err)
	}
	return states, nil
}
