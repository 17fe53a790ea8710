package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"visa_case_bot/internal/domain/cycle"
	"visa_case_bot/internal/domain/event"
	idb "visa_case_bot/internal/infra/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatchFixture(t *testing.T) (*BatchService, *fakeCaseRepo, *fakeCycleStore, *fakeSink) {
	t.Helper()
	caseRepo := newFakeCaseRepo()
	store := newFakeCycleStore()
	sink := &fakeSink{}
	svc := NewBatchService(newFakeAgentRepo("alice", "bob"), caseRepo, store, sink, testLogger())
	return svc, caseRepo, store, sink
}

func caseIDs(b *cycle.Batch) []int64 {
	ids := make([]int64, 0, len(b.Entries))
	for _, e := range b.Entries {
		ids = append(ids, e.CaseID)
	}
	return ids
}

func TestRequestBatchFirstAllocationHeadTail(t *testing.T) {
	svc, caseRepo, _, sink := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 25)

	result, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackStandard)
	require.NoError(t, err)
	require.NotNil(t, result.Issued)
	assert.Empty(t, result.Blocked)

	// 10 head + 10 tail of a 25-case pool: C1..C10 then C16..C25.
	want := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25}
	assert.Equal(t, want, caseIDs(result.Issued))

	require.Len(t, sink.events, 1)
	assert.Equal(t, event.TypeBatchIssued, sink.events[0].eventType)
}

func TestRequestBatchTakesWholePoolAtOrBelowLimit(t *testing.T) {
	svc, caseRepo, store, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 12)

	result, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackStandard)
	require.NoError(t, err)
	require.NotNil(t, result.Issued)
	assert.Len(t, result.Issued.Entries, 12)

	state := store.states[storeKey("alice", cycle.TrackStandard)]
	require.NotNil(t, state)
	assert.Equal(t, 1, state.CurrentCycle().Number)
	assert.Len(t, state.CurrentCycle().Batches, 1)
}

func TestRequestBatchCriticalComposition(t *testing.T) {
	svc, caseRepo, _, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackCritical, 9)

	result, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackCritical)
	require.NoError(t, err)
	require.NotNil(t, result.Issued)

	// 2 head + 3 tail of a 9-case pool.
	assert.Equal(t, []int64{1, 2, 7, 8, 9}, caseIDs(result.Issued))
}

func TestRequestBatchBlockedWithoutTodaysComment(t *testing.T) {
	svc, caseRepo, store, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 8)

	first, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackStandard)
	require.NoError(t, err)
	require.NotNil(t, first.Issued)
	savesAfterFirst := store.saveCount

	// Comment on everything except case 5.
	for _, e := range first.Issued.Entries {
		if e.CaseID != 5 {
			caseRepo.commentToday(e.CaseID, "alice")
		}
	}

	second, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackStandard)
	require.NoError(t, err)
	assert.Nil(t, second.Issued)
	assert.Equal(t, []string{"Client 5"}, second.Blocked)

	// Blocked requests must not mutate persisted state.
	assert.Equal(t, savesAfterFirst, store.saveCount)
	assert.Len(t, store.states[storeKey("alice", cycle.TrackStandard)].CurrentCycle().Batches, 1)
}

func TestRequestBatchCriticalRequiresMedium(t *testing.T) {
	svc, caseRepo, _, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackCritical, 3)
	ctx := context.Background()

	first, err := svc.RequestBatch(ctx, "alice", cycle.TrackCritical)
	require.NoError(t, err)
	require.Len(t, first.Issued.Entries, 3)

	for _, e := range first.Issued.Entries {
		caseRepo.commentToday(e.CaseID, "alice")
	}

	// Comments alone are not enough on the critical track.
	blocked, err := svc.RequestBatch(ctx, "alice", cycle.TrackCritical)
	require.NoError(t, err)
	assert.Nil(t, blocked.Issued)
	assert.Len(t, blocked.Blocked, 3)

	for _, e := range first.Issued.Entries {
		require.NoError(t, svc.RecordMedium(ctx, "alice", cycle.TrackCritical, e.CaseID, "phone"))
	}

	issued, err := svc.RequestBatch(ctx, "alice", cycle.TrackCritical)
	require.NoError(t, err)
	require.NotNil(t, issued.Issued)
}

func TestRequestBatchCycleRollover(t *testing.T) {
	svc, caseRepo, store, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 5)
	ctx := context.Background()

	first, err := svc.RequestBatch(ctx, "alice", cycle.TrackStandard)
	require.NoError(t, err)
	require.Len(t, first.Issued.Entries, 5)

	for _, e := range first.Issued.Entries {
		caseRepo.commentToday(e.CaseID, "alice")
	}

	second, err := svc.RequestBatch(ctx, "alice", cycle.TrackStandard)
	require.NoError(t, err)
	require.NotNil(t, second.Issued)

	// Pool exhausted: a new cycle starts and may reuse prior identifiers.
	state := store.states[storeKey("alice", cycle.TrackStandard)]
	assert.Equal(t, 2, state.CurrentCycle().Number)
	assert.Equal(t, caseIDs(first.Issued), caseIDs(second.Issued))
	require.NoError(t, state.Validate())
}

func TestRequestBatchNoDuplicatesWithinCycle(t *testing.T) {
	svc, caseRepo, store, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 45)
	ctx := context.Background()

	seen := make(map[int64]bool)
	for i := 0; i < 3; i++ {
		result, err := svc.RequestBatch(ctx, "alice", cycle.TrackStandard)
		require.NoError(t, err)
		require.NotNil(t, result.Issued)
		for _, id := range caseIDs(result.Issued) {
			assert.False(t, seen[id], "case %d issued twice within cycle 1", id)
			seen[id] = true
			caseRepo.commentToday(id, "alice")
		}
	}

	state := store.states[storeKey("alice", cycle.TrackStandard)]
	assert.Equal(t, 1, state.CurrentCycle().Number)
	require.NoError(t, state.Validate())
}

func TestRequestBatchConcurrentCallsSerialized(t *testing.T) {
	svc, caseRepo, store, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 45)
	ctx := context.Background()

	// Every gate passes, so each request appends a fresh batch.
	for id := int64(1); id <= 45; id++ {
		caseRepo.commentToday(id, "alice")
	}

	const workers = 10
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.RequestBatch(ctx, "alice", cycle.TrackStandard)
			if err == nil && result.Issued == nil {
				err = fmt.Errorf("request unexpectedly blocked: %v", result.Blocked)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state := store.states[storeKey("alice", cycle.TrackStandard)]
	require.NotNil(t, state)
	require.NoError(t, state.Validate())
	assert.Equal(t, workers, store.saveCount)

	total := 0
	for _, c := range state.Cycles {
		total += len(c.Batches)
	}
	assert.Equal(t, workers, total)
}

func TestRequestBatchEmptyPoolIssuesEmptyBatch(t *testing.T) {
	svc, _, _, _ := newBatchFixture(t)

	result, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackStandard)
	require.NoError(t, err)
	require.NotNil(t, result.Issued)
	assert.Empty(t, result.Issued.Entries)
}

func TestRequestBatchUnknownAgentRejected(t *testing.T) {
	svc, caseRepo, store, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 5)

	_, err := svc.RequestBatch(context.Background(), "mallory", cycle.TrackStandard)
	assert.ErrorIs(t, err, ErrAgentNotAuthorized)
	assert.Zero(t, store.saveCount)
}

func TestRequestBatchCorruptedStateAbortsWrite(t *testing.T) {
	svc, caseRepo, store, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 6)

	// A case sitting in two batches of one cycle must never be persisted over.
	corrupted := cycle.NewState("alice", cycle.TrackStandard)
	corrupted.CurrentCycle().Batches = []*cycle.Batch{
		{CreatedAt: time.Now(), Entries: []cycle.BatchEntry{{CaseID: 1, CaseNo: "C1"}}},
		{CreatedAt: time.Now(), Entries: []cycle.BatchEntry{{CaseID: 1, CaseNo: "C1"}}},
	}
	store.states[storeKey("alice", cycle.TrackStandard)] = corrupted
	caseRepo.commentToday(1, "alice")

	_, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackStandard)
	assert.ErrorIs(t, err, ErrCycleInvariant)
	assert.Zero(t, store.saveCount)
}

func TestRequestBatchSurfacesVersionConflict(t *testing.T) {
	svc, caseRepo, store, sink := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 5)
	store.saveErr = idb.ErrCycleStateConflict

	result, err := svc.RequestBatch(context.Background(), "alice", cycle.TrackStandard)
	assert.ErrorIs(t, err, idb.ErrCycleStateConflict)
	assert.Nil(t, result)
	assert.Empty(t, sink.events)
}

func TestRecordMediumUnknownCase(t *testing.T) {
	svc, caseRepo, _, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackCritical, 3)
	ctx := context.Background()

	_, err := svc.RequestBatch(ctx, "alice", cycle.TrackCritical)
	require.NoError(t, err)

	err = svc.RecordMedium(ctx, "alice", cycle.TrackCritical, 99, "phone")
	assert.ErrorIs(t, err, ErrCaseNotInBatch)
}

func TestLastBatchWithoutState(t *testing.T) {
	svc, _, _, _ := newBatchFixture(t)
	_, err := svc.LastBatch(context.Background(), "alice", cycle.TrackStandard)
	assert.ErrorIs(t, err, ErrNoBatch)
}

func TestBatchesInRange(t *testing.T) {
	svc, caseRepo, _, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 45)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		result, err := svc.RequestBatch(ctx, "alice", cycle.TrackStandard)
		require.NoError(t, err)
		for _, id := range caseIDs(result.Issued) {
			caseRepo.commentToday(id, "alice")
		}
		clock = clock.Add(24 * time.Hour)
	}

	got, err := svc.BatchesInRange(ctx, "alice", cycle.TrackStandard, base.Add(12*time.Hour), base.Add(36*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, base.Add(24*time.Hour), got[0].CreatedAt)
}

func TestCompletionOrder(t *testing.T) {
	svc, caseRepo, _, _ := newBatchFixture(t)
	caseRepo.seedCases(cycle.TrackStandard, 10)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// bob allocated earlier than alice, so bob completed earlier.
	svc.now = func() time.Time { return base }
	_, err := svc.RequestBatch(ctx, "bob", cycle.TrackStandard)
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = svc.RequestBatch(ctx, "alice", cycle.TrackStandard)
	require.NoError(t, err)

	standings, err := svc.CompletionOrder(ctx, cycle.TrackStandard)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, Standing{Position: 1, Agent: "bob"}, standings[0])
	assert.Equal(t, Standing{Position: 2, Agent: "alice"}, standings[1])
}
