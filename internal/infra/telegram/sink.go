package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"visa_case_bot/internal/domain/agent"
	"visa_case_bot/internal/domain/cycle"
	"visa_case_bot/internal/domain/event"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// EventSink delivers core events to agents over Telegram. Emit is
// fire-and-forget: delivery happens on a separate goroutine and failures are
// logged, never surfaced to the emitting operation.
type EventSink struct {
	adapter   *TelebotAdapter
	agentRepo agent.Repository
	logger    *logrus.Entry
}

func NewEventSink(adapter *TelebotAdapter, ar agent.Repository, logger *logrus.Entry) *EventSink {
	return &EventSink{adapter: adapter, agentRepo: ar, logger: logger}
}

func (s *EventSink) Emit(eventType string, payload any) {
	go s.deliver(eventType, payload)
}

func (s *EventSink) deliver(eventType string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logCtx := s.logger.WithField("event_type", eventType)

	switch p := payload.(type) {
	case event.BatchIssuedPayload:
		s.sendToAgent(ctx, logCtx, p.Agent, formatBatch(p.Track, p.Batch), nil)
	case event.ReminderPayload:
		// Inline button lets the agent acknowledge straight from the message.
		markup := &telebot.ReplyMarkup{}
		btn := markup.Data("Mark read", fmt.Sprintf("read_%d", p.Record.ID))
		markup.Inline(markup.Row(btn))
		s.sendToAgent(ctx, logCtx.WithField("case_no", p.Record.CaseNo), p.Record.AgentName, p.Record.Message, &telebot.SendOptions{ReplyMarkup: markup})
	default:
		logCtx.Warnf("Unknown event payload type %T, dropping", payload)
	}
}

func (s *EventSink) sendToAgent(ctx context.Context, logCtx *logrus.Entry, agentName, text string, opts *telebot.SendOptions) {
	a, err := s.agentRepo.GetByName(ctx, agentName)
	if err != nil {
		logCtx.WithError(err).WithField("agent", agentName).Error("Cannot resolve event recipient")
		return
	}
	if err := s.adapter.SendMessage(a.TelegramID, text, opts); err != nil {
		logCtx.WithError(err).WithField("agent", agentName).Error("Failed to deliver event")
	}
}

func formatBatch(track cycle.Track, b *cycle.Batch) string {
	var sb strings.Builder
	if track == cycle.TrackCritical {
		sb.WriteString("New critical batch issued:\n")
	} else {
		sb.WriteString("New batch issued:\n")
	}
	if len(b.Entries) == 0 {
		sb.WriteString("(no eligible cases right now)")
		return sb.String()
	}
	for i, e := range b.Entries {
		sb.WriteString(fmt.Sprintf("%d. %s — %s", i+1, e.CaseNo, e.ClientName))
		if e.Medium != "" {
			sb.WriteString(fmt.Sprintf(" [%s]", e.Medium))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
