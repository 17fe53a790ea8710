package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"visa_case_bot/internal/domain/casefile"
	"visa_case_bot/internal/domain/event"
	"visa_case_bot/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

const (
	// scanTick is the engine's nominal tick interval. The capture window
	// below must stay comfortably wider than it.
	scanTick = time.Minute

	// captureWindow is how far below a threshold a crossing is still
	// recognized. A 60s tick cannot hit the exact crossing instant, so each
	// threshold T captures remaining values in (T-captureWindow, T]; the
	// dedup layers then reduce at-least-once to at-most-once.
	captureWindow = 600 * time.Second

	// postExpiryEvery is the cadence of overdue reminders.
	postExpiryEvery = 3 * time.Hour
)

// preThresholds are the fixed pre-deadline reminder offsets.
var preThresholds = []time.Duration{
	48 * time.Hour,
	24 * time.Hour,
	2 * time.Hour,
	15 * time.Minute,
	1 * time.Minute,
}

// DeadlineService scans open commitments and critical highlights and emits
// exactly-once reminders around their deadlines.
type DeadlineService struct {
	caseRepo  casefile.Repository
	notifRepo notification.Repository
	sink      event.Sink
	logger    *logrus.Entry

	scanning atomic.Bool
}

func NewDeadlineService(
	cr casefile.Repository,
	nr notification.Repository,
	sink event.Sink,
	logger *logrus.Entry,
) *DeadlineService {
	return &DeadlineService{
		caseRepo:  cr,
		notifRepo: nr,
		sink:      sink,
		logger:    logger,
	}
}

// RunScan executes one scan pass at the given instant. It is invoked by the
// scheduler every minute and can be called directly. A scan that finds a
// previous one still running returns without doing anything; a failing scan
// affects only itself, the next tick proceeds independently.
func (s *DeadlineService) RunScan(ctx context.Context, now time.Time) error {
	if !s.scanning.CompareAndSwap(false, true) {
		s.logger.Warn("Previous deadline scan still running, skipping this tick")
		return nil
	}
	defer s.scanning.Store(false)

	cases, err := s.caseRepo.FindWithOpenDeadlines(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch cases with open deadlines: %w", err)
	}

	seen := make(map[string]struct{}) // per-scan fast path; the durable guard is the unread-record match
	fresh := make([]*notification.Record, 0)

	for _, c := range cases {
		for _, cm := range c.Commitments {
			rec := candidateRecord(now, c, notification.TypeCommitment, cm.Description, cm.Deadline)
			if rec == nil {
				continue
			}
			s.collect(ctx, rec, seen, &fresh)
		}
		for _, h := range c.Highlights {
			rec := candidateRecord(now, c, notification.TypeCriticalHighlight, h.Description, h.Expiry)
			if rec == nil {
				continue
			}
			s.collect(ctx, rec, seen, &fresh)
		}
	}

	if len(fresh) == 0 {
		return nil
	}

	if err := s.notifRepo.Append(ctx, fresh); err != nil {
		return fmt.Errorf("failed to persist notification records: %w", err)
	}

	for _, rec := range fresh {
		eventType := event.TypeCommitmentReminder
		if rec.Type == notification.TypeCriticalHighlight {
			eventType = event.TypeHighlightReminder
		}
		s.sink.Emit(eventType, event.ReminderPayload{Record: rec})
	}

	s.logger.WithField("records", len(fresh)).Info("Deadline scan emitted reminders")
	return nil
}

// collect runs both dedup layers over a candidate and keeps it when new.
// A failing durable check drops only that candidate; emitting nothing is the
// safe side of the at-most-once contract.
func (s *DeadlineService) collect(ctx context.Context, rec *notification.Record, seen map[string]struct{}, fresh *[]*notification.Record) {
	key := fmt.Sprintf("%d|%s|%s", rec.CaseID, rec.ItemName, rec.Message)
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}

	exists, err := s.notifRepo.UnreadExists(ctx, rec.CaseID, rec.ItemName, rec.Message)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"case_id": rec.CaseID,
			"item":    rec.ItemName,
		}).Error("Failed durable dedup check, dropping candidate")
		return
	}
	if exists {
		return
	}
	*fresh = append(*fresh, rec)
}

// candidateRecord decides whether the item is crossing a reminder threshold
// at `now` and builds the record for it. The rendered message encodes the
// threshold (or overdue slot), not the exact elapsed time, so it is stable
// across ticks and usable as part of the dedup identity.
func candidateRecord(now time.Time, c *casefile.Case, typ notification.Type, description string, deadline time.Time) *notification.Record {
	remaining := deadline.Sub(now)
	elapsed := now.Sub(deadline)

	var message string
	switch {
	case remaining >= 0:
		var threshold time.Duration
		for _, t := range preThresholds {
			if remaining <= t && remaining > t-captureWindow {
				threshold = t
				break
			}
		}
		if threshold == 0 {
			return nil
		}
		if typ == notification.TypeCommitment {
			message = fmt.Sprintf("Commitment %q on case %s (%s) is due in %s.", description, c.CaseNo, c.ClientName, RenderDuration(threshold))
		} else {
			message = fmt.Sprintf("Critical highlight %q on case %s (%s) expires in %s.", description, c.CaseNo, c.ClientName, RenderDuration(threshold))
		}
	case elapsed >= postExpiryEvery:
		// One reminder per 3h slot since the deadline. A tick landing late in
		// a slot still emits; the dedup identity keys on the slot duration.
		slot := int64(elapsed / postExpiryEvery)
		overdue := time.Duration(slot) * postExpiryEvery
		if typ == notification.TypeCommitment {
			message = fmt.Sprintf("Commitment %q on case %s (%s) is overdue by %s.", description, c.CaseNo, c.ClientName, RenderDuration(overdue))
		} else {
			message = fmt.Sprintf("Critical highlight %q on case %s (%s) expired %s ago.", description, c.CaseNo, c.ClientName, RenderDuration(overdue))
		}
	default:
		return nil
	}

	return &notification.Record{
		Type:       typ,
		CaseID:     c.ID,
		CaseNo:     c.CaseNo,
		ClientName: c.ClientName,
		AgentName:  c.AssignedCSS,
		ItemName:   fmt.Sprintf("%s (due %s)", description, deadline.Format("2006-01-02 15:04")),
		Message:    message,
		Deadline:   deadline,
	}
}
