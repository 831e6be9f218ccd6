// Package audit captures security-relevant actions emitted from domain logic.
// Events are transport-agnostic so sinks (log, store, SIEM forwarder) can fan out.
package audit

import (
	"context"
	"log/slog"
	"time"

	"zeron/pkg/requestcontext"
)

// Event is emitted from domain logic to capture key actions.
type Event struct {
	Timestamp time.Time
	// ActorID is the previously-authenticated identity performing the action.
	ActorID string
	// Subject names the entity acted on (property ID, user ID, challenge ID).
	Subject string
	Action  string
	// Decision is "allowed" or "denied" for authority-sensitive actions.
	Decision string
	Reason   string
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string
}

// Audit action names.
const (
	ActionChallengeIssued    = "otp_challenge_issued"
	ActionChallengeVerified  = "otp_challenge_verified"
	ActionChallengeExhausted = "otp_attempts_exhausted"
	ActionDispatchFallback   = "otp_dispatch_fallback"
	ActionAuthorityDenied    = "authority_denied"
	ActionMutationApplied    = "gated_mutation_applied"
	ActionSharesReserved     = "shares_reserved"
)

// Publisher emits audit events for security-relevant operations.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Log is a shared helper used by services: it writes the event to the
// structured logger and hands it to the publisher when one is configured.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if logger != nil {
		logger.InfoContext(ctx, event.Action,
			"log_type", "audit",
			"actor_id", event.ActorID,
			"subject", event.Subject,
			"decision", event.Decision,
			"reason", event.Reason,
			"request_id", event.RequestID,
		)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
