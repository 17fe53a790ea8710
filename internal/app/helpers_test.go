package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"visa_case_bot/internal/domain/agent"
	"visa_case_bot/internal/domain/casefile"
	"visa_case_bot/internal/domain/cycle"
	"visa_case_bot/internal/domain/notification"
	idb "visa_case_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// --- agent repository fake ---

type fakeAgentRepo struct {
	agents map[string]*agent.Agent // keyed by name
}

func newFakeAgentRepo(names ...string) *fakeAgentRepo {
	r := &fakeAgentRepo{agents: make(map[string]*agent.Agent)}
	for i, n := range names {
		r.agents[n] = &agent.Agent{ID: int64(i + 1), Name: n, TelegramID: int64(1000 + i), IsActive: true}
	}
	return r
}

func (r *fakeAgentRepo) Create(_ context.Context, a *agent.Agent) error {
	r.agents[a.Name] = a
	return nil
}

func (r *fakeAgentRepo) GetByID(_ context.Context, id int64) (*agent.Agent, error) {
	for _, a := range r.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, idb.ErrAgentNotFound
}

func (r *fakeAgentRepo) GetByName(_ context.Context, name string) (*agent.Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, idb.ErrAgentNotFound
	}
	return a, nil
}

func (r *fakeAgentRepo) GetByTelegramID(_ context.Context, telegramID int64) (*agent.Agent, error) {
	for _, a := range r.agents {
		if a.TelegramID == telegramID {
			return a, nil
		}
	}
	return nil, idb.ErrAgentNotFound
}

func (r *fakeAgentRepo) Update(_ context.Context, a *agent.Agent) error {
	r.agents[a.Name] = a
	return nil
}

func (r *fakeAgentRepo) ListActive(_ context.Context) ([]*agent.Agent, error) {
	out := make([]*agent.Agent, 0)
	for _, a := range r.agents {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAgentRepo) ListAll(_ context.Context) ([]*agent.Agent, error) {
	out := make([]*agent.Agent, 0)
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out, nil
}

// --- case repository fake ---

type fakeCaseRepo struct {
	eligible      map[cycle.Track][]*casefile.Case // per track, in pool order
	commented     map[string]bool                  // "caseID|author"
	openDeadlines []*casefile.Case
	findErr       error
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{
		eligible:  make(map[cycle.Track][]*casefile.Case),
		commented: make(map[string]bool),
	}
}

// seedCases builds n sequential cases (ids 1..n, case numbers C1..Cn) on the track.
func (r *fakeCaseRepo) seedCases(track cycle.Track, n int) {
	flag := casefile.FlagNormal
	if track == cycle.TrackCritical {
		flag = casefile.FlagCritical
	}
	for i := 1; i <= n; i++ {
		r.eligible[track] = append(r.eligible[track], &casefile.Case{
			ID:          int64(i),
			CaseNo:      fmt.Sprintf("C%d", i),
			ClientName:  fmt.Sprintf("Client %d", i),
			AssignedCSS: "alice",
			Stage:       casefile.StageActive,
			Flag:        flag,
		})
	}
}

func (r *fakeCaseRepo) commentToday(caseID int64, author string) {
	r.commented[fmt.Sprintf("%d|%s", caseID, author)] = true
}

func (r *fakeCaseRepo) FindEligible(_ context.Context, _ string, track cycle.Track) ([]*casefile.Case, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.eligible[track], nil
}

func (r *fakeCaseRepo) FindByID(_ context.Context, id int64) (*casefile.Case, error) {
	for _, cases := range r.eligible {
		for _, c := range cases {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return nil, idb.ErrCaseNotFound
}

func (r *fakeCaseRepo) HasCommentToday(_ context.Context, caseID int64, author string, _ time.Time) (bool, error) {
	return r.commented[fmt.Sprintf("%d|%s", caseID, author)], nil
}

func (r *fakeCaseRepo) FindWithOpenDeadlines(_ context.Context) ([]*casefile.Case, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.openDeadlines, nil
}

func (r *fakeCaseRepo) SetCommitmentStatus(_ context.Context, _ int64, _ casefile.ItemStatus) error {
	return nil
}

func (r *fakeCaseRepo) SetHighlightStatus(_ context.Context, _ int64, _ casefile.ItemStatus) error {
	return nil
}

// --- cycle store fake ---

type fakeCycleStore struct {
	states    map[string]*cycle.State
	saveCount int
	saveErr   error
}

func newFakeCycleStore() *fakeCycleStore {
	return &fakeCycleStore{states: make(map[string]*cycle.State)}
}

func storeKey(agentName string, track cycle.Track) string {
	return agentName + "|" + string(track)
}

func (s *fakeCycleStore) Load(_ context.Context, agentName string, track cycle.Track) (*cycle.State, error) {
	st, ok := s.states[storeKey(agentName, track)]
	if !ok {
		return nil, idb.ErrCycleStateNotFound
	}
	return st, nil
}

func (s *fakeCycleStore) Save(_ context.Context, state *cycle.State) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[storeKey(state.Agent, state.Track)] = state
	s.saveCount++
	return nil
}

func (s *fakeCycleStore) ListByTrack(_ context.Context, track cycle.Track) ([]*cycle.State, error) {
	out := make([]*cycle.State, 0)
	for _, st := range s.states {
		if st.Track == track {
			out = append(out, st)
		}
	}
	return out, nil
}

// --- notification repository fake ---

type fakeNotifRepo struct {
	records []*notification.Record
	nextID  int64
}

func (r *fakeNotifRepo) Append(_ context.Context, records []*notification.Record) error {
	for _, rec := range records {
		r.nextID++
		rec.ID = r.nextID
		rec.CreatedAt = time.Now()
		r.records = append(r.records, rec)
	}
	return nil
}

func (r *fakeNotifRepo) UnreadExists(_ context.Context, caseID int64, itemName, message string) (bool, error) {
	for _, rec := range r.records {
		if !rec.Read && rec.CaseID == caseID && rec.ItemName == itemName && rec.Message == message {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeNotifRepo) MarkRead(_ context.Context, id int64) error {
	for _, rec := range r.records {
		if rec.ID == id {
			rec.Read = true
			return nil
		}
	}
	return idb.ErrNotificationNotFound
}

func (r *fakeNotifRepo) ClearRead(_ context.Context) (int64, error) {
	kept := r.records[:0]
	var n int64
	for _, rec := range r.records {
		if rec.Read {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n, nil
}

func (r *fakeNotifRepo) ListUnreadByAgent(_ context.Context, agentName string) ([]*notification.Record, error) {
	out := make([]*notification.Record, 0)
	for _, rec := range r.records {
		if !rec.Read && rec.AgentName == agentName {
			out = append(out, rec)
		}
	}
	return out, nil
}

// --- event sink fake ---

type emitted struct {
	eventType string
	payload   any
}

type fakeSink struct {
	events []emitted
}

func (s *fakeSink) Emit(eventType string, payload any) {
	s.events = append(s.events, emitted{eventType: eventType, payload: payload})
}
