package event

import (
	"visa_case_bot/internal/domain/cycle"
	"visa_case_bot/internal/domain/notification"
)

// Event types published by the core.
const (
	TypeBatchIssued        = "batch_issued"
	TypeCommitmentReminder = "commitment_reminder"
	TypeHighlightReminder  = "critical_highlight_reminder"
)

// Sink delivers core events to connected clients. Emit is fire-and-forget:
// the core never awaits delivery confirmation and a failing sink must not
// fail the emitting operation.
type Sink interface {
	Emit(eventType string, payload any)
}

// BatchIssuedPayload accompanies TypeBatchIssued.
type BatchIssuedPayload struct {
	Agent string
	Track cycle.Track
	Batch *cycle.Batch
}

// ReminderPayload accompanies the two reminder event types.
type ReminderPayload struct {
	Record *notification.Record
}
