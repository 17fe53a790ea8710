package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"visa_case_bot/internal/app"
	"visa_case_bot/internal/domain/agent"
	"visa_case_bot/internal/domain/casefile"
	"visa_case_bot/internal/domain/cycle"
	"visa_case_bot/internal/domain/notification"
	idb "visa_case_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAgentHandlers wires the CSS-facing commands: batch rotation,
// medium annotation, commitment/highlight resolution and reminder handling.
func RegisterAgentHandlers(
	ctx context.Context,
	b *telebot.Bot,
	batchSvc *app.BatchService,
	agentRepo agent.Repository,
	caseRepo casefile.Repository,
	notifRepo notification.Repository,
	baseLogger *logrus.Entry,
) {
	resolveAgent := func(c telebot.Context) (*agent.Agent, error) {
		a, err := agentRepo.GetByTelegramID(ctx, c.Sender().ID)
		if err != nil {
			if err == idb.ErrAgentNotFound {
				return nil, c.Send("You are not registered as a CSS agent. Ask an administrator to add you.")
			}
			return nil, c.Send("Could not verify your account, please try again later.")
		}
		if !a.IsActive {
			return nil, c.Send("Your agent account is inactive. Contact an administrator.")
		}
		return a, nil
	}

	requestBatch := func(c telebot.Context, track cycle.Track) error {
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   c.Message().Text,
			"sender_id": c.Sender().ID,
			"track":     track,
		})

		a, err := resolveAgent(c)
		if a == nil {
			return err
		}

		result, err := batchSvc.RequestBatch(ctx, a.Name, track)
		if err != nil {
			if err == app.ErrAgentNotAuthorized {
				logCtx.Warn("Unauthorized batch request")
				return c.Send("You are not authorized to request batches on this track.")
			}
			logCtx.WithError(err).Error("Batch request failed")
			return c.Send("Could not issue a batch right now, please try again later.")
		}

		if len(result.Blocked) > 0 {
			logCtx.WithField("blocking_cases", result.Blocked).Info("Batch request blocked")
			msg := "Finish your current batch first. Still waiting on today's update for:\n- " + strings.Join(result.Blocked, "\n- ")
			if track == cycle.TrackCritical {
				msg += "\n(critical cases also need a contact medium, see /medium)"
			}
			return c.Send(msg)
		}

		logCtx.WithField("batch_size", len(result.Issued.Entries)).Info("Batch issued")
		return c.Send(formatBatch(track, result.Issued))
	}

	b.Handle("/nextbatch", func(c telebot.Context) error {
		return requestBatch(c, cycle.TrackStandard)
	})

	b.Handle("/redflag", func(c telebot.Context) error {
		return requestBatch(c, cycle.TrackCritical)
	})

	b.Handle("/mybatch", func(c telebot.Context) error {
		a, err := resolveAgent(c)
		if a == nil {
			return err
		}
		track := cycle.TrackStandard
		if len(c.Args()) > 0 && strings.EqualFold(c.Args()[0], "critical") {
			track = cycle.TrackCritical
		}
		batch, err := batchSvc.LastBatch(ctx, a.Name, track)
		if err != nil {
			if err == app.ErrNoBatch {
				return c.Send("No batch has been issued to you yet. Use /nextbatch to get one.")
			}
			baseLogger.WithError(err).Error("Failed to load last batch")
			return c.Send("Could not load your batch, please try again later.")
		}
		return c.Send(formatBatch(track, batch))
	})

	// /medium <CaseNo> <medium> — annotate a case of the current critical batch.
	b.Handle("/medium", func(c telebot.Context) error {
		a, err := resolveAgent(c)
		if a == nil {
			return err
		}
		args := c.Args()
		if len(args) < 2 {
			return c.Send("Usage: /medium <CaseNo> <medium>, e.g. /medium VC-2041 phone")
		}
		caseNo := args[0]
		medium := strings.Join(args[1:], " ")

		batch, err := batchSvc.LastBatch(ctx, a.Name, cycle.TrackCritical)
		if err != nil {
			if err == app.ErrNoBatch {
				return c.Send("You have no critical batch yet. Use /redflag to get one.")
			}
			baseLogger.WithError(err).Error("Failed to load critical batch for medium annotation")
			return c.Send("Could not load your critical batch, please try again later.")
		}

		var caseID int64
		found := false
		for _, e := range batch.Entries {
			if e.CaseNo == caseNo {
				caseID = e.CaseID
				found = true
				break
			}
		}
		if !found {
			return c.Send(fmt.Sprintf("Case %s is not part of your current critical batch.", caseNo))
		}

		if err := batchSvc.RecordMedium(ctx, a.Name, cycle.TrackCritical, caseID, medium); err != nil {
			baseLogger.WithError(err).WithField("case_no", caseNo).Error("Failed to record medium")
			return c.Send("Could not record the contact medium, please try again later.")
		}
		return c.Send(fmt.Sprintf("Recorded medium %q for case %s.", medium, caseNo))
	})

	// /done <commitmentID> — mark a commitment fulfilled.
	b.Handle("/done", func(c telebot.Context) error {
		a, err := resolveAgent(c)
		if a == nil {
			return err
		}
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /done <commitment id>")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("The commitment id must be a number.")
		}
		if err := caseRepo.SetCommitmentStatus(ctx, id, casefile.StatusDone); err != nil {
			if err == idb.ErrCommitmentNotFound {
				return c.Send("No commitment with that id.")
			}
			baseLogger.WithError(err).Error("Failed to mark commitment done")
			return c.Send("Could not update the commitment, please try again later.")
		}
		baseLogger.WithFields(logrus.Fields{"agent": a.Name, "commitment_id": id}).Info("Commitment marked done")
		return c.Send("Commitment marked as done.")
	})

	// /resolve <highlightID> — resolve a critical highlight.
	b.Handle("/resolve", func(c telebot.Context) error {
		a, err := resolveAgent(c)
		if a == nil {
			return err
		}
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /resolve <highlight id>")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("The highlight id must be a number.")
		}
		if err := caseRepo.SetHighlightStatus(ctx, id, casefile.StatusResolved); err != nil {
			if err == idb.ErrHighlightNotFound {
				return c.Send("No critical highlight with that id.")
			}
			baseLogger.WithError(err).Error("Failed to resolve highlight")
			return c.Send("Could not update the highlight, please try again later.")
		}
		baseLogger.WithFields(logrus.Fields{"agent": a.Name, "highlight_id": id}).Info("Critical highlight resolved")
		return c.Send("Critical highlight resolved.")
	})

	b.Handle("/reminders", func(c telebot.Context) error {
		a, err := resolveAgent(c)
		if a == nil {
			return err
		}
		records, err := notifRepo.ListUnreadByAgent(ctx, a.Name)
		if err != nil {
			baseLogger.WithError(err).Error("Failed to list unread reminders")
			return c.Send("Could not load your reminders, please try again later.")
		}
		if len(records) == 0 {
			return c.Send("No unread reminders.")
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("You have %d unread reminders:\n", len(records)))
		for _, r := range records {
			sb.WriteString(fmt.Sprintf("#%d %s\n", r.ID, r.Message))
		}
		sb.WriteString("\nUse the Mark read button on a reminder, or /read <id>.")
		return c.Send(sb.String())
	})

	// /read <recordID> — text fallback for the inline Mark read button.
	b.Handle("/read", func(c telebot.Context) error {
		a, err := resolveAgent(c)
		if a == nil {
			return err
		}
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /read <reminder id>")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("The reminder id must be a number.")
		}
		if err := notifRepo.MarkRead(ctx, id); err != nil {
			if err == idb.ErrNotificationNotFound {
				return c.Send("No reminder with that id.")
			}
			baseLogger.WithError(err).Error("Failed to mark reminder read")
			return c.Send("Could not mark the reminder read, please try again later.")
		}
		baseLogger.WithFields(logrus.Fields{"agent": a.Name, "record_id": id}).Info("Reminder marked read")
		return c.Send("Reminder marked as read.")
	})

	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := strings.TrimPrefix(strings.TrimSpace(c.Callback().Data), "\f")

		if strings.HasPrefix(data, "read_") {
			idStr := strings.TrimPrefix(data, "read_")
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				c.Bot().OnError(fmt.Errorf("invalid record id %q in read callback: %w", idStr, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Invalid reminder."})
			}
			if err := notifRepo.MarkRead(ctx, id); err != nil {
				if err == idb.ErrNotificationNotFound {
					return c.Respond(&telebot.CallbackResponse{Text: "Reminder is gone."})
				}
				c.Bot().OnError(fmt.Errorf("error marking record %d read: %w", id, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong."})
			}
			return c.Respond(&telebot.CallbackResponse{Text: "Marked as read."})
		}

		c.Bot().OnError(fmt.Errorf("unhandled callback data: %s", data), c)
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
	})
}
