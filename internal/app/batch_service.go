package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"visa_case_bot/internal/domain/agent"
	"visa_case_bot/internal/domain/casefile"
	"visa_case_bot/internal/domain/cycle"
	"visa_case_bot/internal/domain/event"
	idb "visa_case_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// Custom application-level errors for batch operations
var ErrAgentNotAuthorized = fmt.Errorf("agent is not authorized for this track")
var ErrNoBatch = fmt.Errorf("no batch has been issued yet")
var ErrCaseNotInBatch = fmt.Errorf("case is not part of the agent's last batch")
var ErrCycleInvariant = fmt.Errorf("cycle invariant violated")

// trackPolicy fixes batch composition per track. The head/tail mix is a
// deliberate policy to interleave long-standing and newly-added cases.
type trackPolicy struct {
	limit int // take everything at or below this pool size
	head  int
	tail  int
}

var trackPolicies = map[cycle.Track]trackPolicy{
	cycle.TrackStandard: {limit: 20, head: 10, tail: 10},
	cycle.TrackCritical: {limit: 5, head: 2, tail: 3},
}

// BatchResult is the outcome of a batch request. Exactly one of the fields is
// set: Issued on success, Blocked (client names of unactioned cases) when the
// completion gate refuses progression. Blocked is a normal negative result,
// not an error.
type BatchResult struct {
	Issued  *cycle.Batch
	Blocked []string
}

// Standing is one row of the completion-order report.
type Standing struct {
	Position int
	Agent    string
}

// BatchService allocates work batches per agent and track.
type BatchService struct {
	agentRepo agent.Repository
	caseRepo  casefile.Repository
	store     cycle.Store
	sink      event.Sink
	logger    *logrus.Entry
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewBatchService(
	ar agent.Repository,
	cr casefile.Repository,
	store cycle.Store,
	sink event.Sink,
	logger *logrus.Entry,
) *BatchService {
	return &BatchService{
		agentRepo: ar,
		caseRepo:  cr,
		store:     store,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor serializes allocation per (agent, track). Requests for different
// agents proceed in parallel.
func (s *BatchService) lockFor(agentName string, track cycle.Track) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := agentName + "|" + string(track)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *BatchService) authorize(ctx context.Context, agentName string) error {
	a, err := s.agentRepo.GetByName(ctx, agentName)
	if err != nil {
		if err == idb.ErrAgentNotFound {
			return ErrAgentNotAuthorized
		}
		return fmt.Errorf("failed to look up agent %q: %w", agentName, err)
	}
	if !a.IsActive {
		return ErrAgentNotAuthorized
	}
	return nil
}

// RequestBatch produces the agent's next unit of work on the track, or a
// Blocked result naming the cases of the previous batch that still lack
// today's comment (and, on the critical track, a contact medium).
func (s *BatchService) RequestBatch(ctx context.Context, agentName string, track cycle.Track) (*BatchResult, error) {
	if err := s.authorize(ctx, agentName); err != nil {
		return nil, err
	}

	lock := s.lockFor(agentName, track)
	lock.Lock()
	defer lock.Unlock()

	logCtx := s.logger.WithFields(logrus.Fields{"agent": agentName, "track": track})

	state, err := s.store.Load(ctx, agentName, track)
	if err != nil {
		if err != idb.ErrCycleStateNotFound {
			return nil, fmt.Errorf("failed to load cycle state: %w", err)
		}
		state = cycle.NewState(agentName, track)
		logCtx.Info("No cycle state yet, starting cycle 1")
	}

	blocked, err := s.gateBlockers(ctx, agentName, track, state.LastBatch())
	if err != nil {
		return nil, err
	}
	if len(blocked) > 0 {
		logCtx.WithField("blocking_cases", blocked).Info("Batch request blocked by completion gate")
		return &BatchResult{Blocked: blocked}, nil
	}

	pool, err := s.caseRepo.FindEligible(ctx, agentName, track)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch eligible cases: %w", err)
	}

	current := state.CurrentCycle()
	remaining := subtractUsed(pool, current.UsedCaseIDs())

	// Cycle rollover: the whole pool has been issued at least once.
	if len(remaining) == 0 && len(current.Batches) > 0 {
		current = &cycle.Cycle{Number: current.Number + 1}
		state.Cycles = append(state.Cycles, current)
		remaining = pool
		logCtx.WithField("cycle", current.Number).Info("Pool exhausted, rolling over to new cycle")
	}

	picked := composeBatch(remaining, trackPolicies[track])
	batch := &cycle.Batch{CreatedAt: s.now(), Entries: make([]cycle.BatchEntry, 0, len(picked))}
	for _, c := range picked {
		batch.Entries = append(batch.Entries, cycle.BatchEntry{
			CaseID:     c.ID,
			CaseNo:     c.CaseNo,
			ClientName: c.ClientName,
		})
	}
	current.Batches = append(current.Batches, batch)

	if err := state.Validate(); err != nil {
		// Should never happen; abort the write and surface for investigation.
		return nil, fmt.Errorf("%w: %v", ErrCycleInvariant, err)
	}
	if err := s.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist cycle state: %w", err)
	}

	s.sink.Emit(event.TypeBatchIssued, event.BatchIssuedPayload{Agent: agentName, Track: track, Batch: batch})
	logCtx.WithFields(logrus.Fields{"cycle": current.Number, "batch_size": len(batch.Entries)}).Info("Batch issued")
	return &BatchResult{Issued: batch}, nil
}

// gateBlockers checks the completion gate against the previous batch and
// returns the client names still blocking progression.
func (s *BatchService) gateBlockers(ctx context.Context, agentName string, track cycle.Track, last *cycle.Batch) ([]string, error) {
	if last == nil {
		return nil, nil
	}
	var blocked []string
	today := s.now()
	for _, e := range last.Entries {
		ok, err := s.caseRepo.HasCommentToday(ctx, e.CaseID, agentName, today)
		if err != nil {
			return nil, fmt.Errorf("failed to check same-day comment for case %d: %w", e.CaseID, err)
		}
		if !ok || (track == cycle.TrackCritical && e.Medium == "") {
			name := e.ClientName
			if name == "" {
				name = e.CaseNo
			}
			blocked = append(blocked, name)
		}
	}
	return blocked, nil
}

func subtractUsed(pool []*casefile.Case, used map[int64]struct{}) []*casefile.Case {
	remaining := make([]*casefile.Case, 0, len(pool))
	for _, c := range pool {
		if _, ok := used[c.ID]; !ok {
			remaining = append(remaining, c)
		}
	}
	return remaining
}

// composeBatch applies the fixed head/tail policy: take everything up to the
// limit, otherwise the first `head` plus the last `tail` of the pool order.
func composeBatch(remaining []*casefile.Case, p trackPolicy) []*casefile.Case {
	if len(remaining) <= p.limit {
		return remaining
	}
	picked := make([]*casefile.Case, 0, p.head+p.tail)
	picked = append(picked, remaining[:p.head]...)
	picked = append(picked, remaining[len(remaining)-p.tail:]...)
	return picked
}

// RecordMedium annotates a case of the agent's last batch with the contact
// medium used. The critical track's completion gate requires this annotation.
func (s *BatchService) RecordMedium(ctx context.Context, agentName string, track cycle.Track, caseID int64, medium string) error {
	if err := s.authorize(ctx, agentName); err != nil {
		return err
	}

	lock := s.lockFor(agentName, track)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.store.Load(ctx, agentName, track)
	if err != nil {
		if err == idb.ErrCycleStateNotFound {
			return ErrNoBatch
		}
		return fmt.Errorf("failed to load cycle state: %w", err)
	}
	last := state.LastBatch()
	if last == nil {
		return ErrNoBatch
	}
	for i := range last.Entries {
		if last.Entries[i].CaseID == caseID {
			last.Entries[i].Medium = medium
			if err := s.store.Save(ctx, state); err != nil {
				return fmt.Errorf("failed to persist medium annotation: %w", err)
			}
			return nil
		}
	}
	return ErrCaseNotInBatch
}

// LastBatch returns the agent's most recently issued batch on the track.
func (s *BatchService) LastBatch(ctx context.Context, agentName string, track cycle.Track) (*cycle.Batch, error) {
	state, err := s.store.Load(ctx, agentName, track)
	if err != nil {
		if err == idb.ErrCycleStateNotFound {
			return nil, ErrNoBatch
		}
		return nil, fmt.Errorf("failed to load cycle state: %w", err)
	}
	last := state.LastBatch()
	if last == nil {
		return nil, ErrNoBatch
	}
	return last, nil
}

// BatchesInRange returns the agent's batches created within [from, to],
// oldest first, across all cycles.
func (s *BatchService) BatchesInRange(ctx context.Context, agentName string, track cycle.Track, from, to time.Time) ([]*cycle.Batch, error) {
	state, err := s.store.Load(ctx, agentName, track)
	if err != nil {
		if err == idb.ErrCycleStateNotFound {
			return []*cycle.Batch{}, nil
		}
		return nil, fmt.Errorf("failed to load cycle state: %w", err)
	}
	batches := make([]*cycle.Batch, 0)
	for _, c := range state.Cycles {
		for _, b := range c.Batches {
			if !b.CreatedAt.Before(from) && !b.CreatedAt.After(to) {
				batches = append(batches, b)
			}
		}
	}
	return batches, nil
}

// CompletionOrder ranks agents on the track by the creation time of their
// newest batch, ascending. Issuing a batch implies the previous one was
// completed, so the earliest latest-batch timestamp marks the earliest
// completer.
func (s *BatchService) CompletionOrder(ctx context.Context, track cycle.Track) ([]Standing, error) {
	states, err := s.store.ListByTrack(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle states: %w", err)
	}

	type ranked struct {
		agent  string
		latest time.Time
	}
	rankings := make([]ranked, 0, len(states))
	for _, st := range states {
		var latest time.Time
		for _, c := range st.Cycles {
			for _, b := range c.Batches {
				if b.CreatedAt.After(latest) {
					latest = b.CreatedAt
				}
			}
		}
		if !latest.IsZero() {
			rankings = append(rankings, ranked{agent: st.Agent, latest: latest})
		}
	}
	sort.Slice(rankings, func(i, j int) bool { return rankings[i].latest.Before(rankings[j].latest) })

	standings := make([]Standing, 0, len(rankings))
	for i, r := range rankings {
		standings = append(standings, Standing{Position: i + 1, Agent: r.agent})
	}
	return standings, nil
}
