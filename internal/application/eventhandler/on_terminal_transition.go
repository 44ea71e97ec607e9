// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"errors"
	"time"

	"github.com/olgagaga/web3-learning/internal/application/command"
	"github.com/olgagaga/web3-learning/internal/domain/attestation"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
	"github.com/olgagaga/web3-learning/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON TERMINAL TRANSITION HANDLER
// Reacts to irreversible state changes: issues the signed attestation and
// delivers the outbound webhook. Delivery is exactly-once per transition:
// the transition ID is claimed in the dedup store before sending, so a
// replayed event or a second worker cannot double-notify.
// ═══════════════════════════════════════════════════════════════════════════

// Notification is one outbound webhook payload.
type Notification struct {
	// TransitionID - the dedup key, unique per terminal transition.
	TransitionID string `json:"transition_id"`

	// EventType - the domain event that fired.
	EventType string `json:"event_type"`

	// AggregateID - the aggregate that transitioned.
	AggregateID string `json:"aggregate_id"`

	// OccurredAt - when the transition happened.
	OccurredAt time.Time `json:"occurred_at"`

	// Payload - the event's serializable data.
	Payload map[string]interface{} `json:"payload"`
}

// Notifier delivers notifications to the configured webhook target.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// DedupStore claims transition IDs for exactly-once delivery.
type DedupStore interface {
	// Claim marks the key as processed. Returns false if already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unclaim releases a key whose processing failed so a redelivery retries.
	Unclaim(ctx context.Context, key string) error
}

// TerminalTransitionConfig contains configuration for the handler.
type TerminalTransitionConfig struct {
	// DedupTTL - how long claimed transition IDs are remembered.
	DedupTTL time.Duration

	// IssueAttestations - whether terminal transitions mint attestations.
	IssueAttestations bool
}

// DefaultTerminalTransitionConfig returns default configuration.
func DefaultTerminalTransitionConfig() TerminalTransitionConfig {
	return TerminalTransitionConfig{
		DedupTTL:          7 * 24 * time.Hour,
		IssueAttestations: true,
	}
}

// OnTerminalTransitionHandler handles terminal transition events.
type OnTerminalTransitionHandler struct {
	notifier    Notifier
	dedup       DedupStore
	attestation *command.IssueAttestationHandler
	log         *logger.Logger
	config      TerminalTransitionConfig
}

// NewOnTerminalTransitionHandler creates a new OnTerminalTransitionHandler.
func NewOnTerminalTransitionHandler(
	notifier Notifier,
	dedup DedupStore,
	attestationHandler *command.IssueAttestationHandler,
	log *logger.Logger,
	config TerminalTransitionConfig,
) *OnTerminalTransitionHandler {
	if config.DedupTTL == 0 {
		config = DefaultTerminalTransitionConfig()
	}
	return &OnTerminalTransitionHandler{
		notifier:    notifier,
		dedup:       dedup,
		attestation: attestationHandler,
		log:         log,
		config:      config,
	}
}

// Subscribe registers the handler for every terminal transition event type.
func (h *OnTerminalTransitionHandler) Subscribe(bus shared.EventSubscriber) error {
	types := []shared.EventType{
		shared.EventCommitmentCompleted,
		shared.EventCommitmentFailed,
		shared.EventSessionVerified,
		shared.EventSessionCancelled,
		shared.EventDisputeResolved,
		shared.EventRoundFinalized,
	}
	for _, t := range types {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one terminal transition event.
// Implements shared.EventHandler.
func (h *OnTerminalTransitionHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	transitionID := extractTransitionID(event)
	if transitionID == "" {
		h.log.Warn("terminal event without transition ID",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
		)
		return nil
	}

	claimed, err := h.dedup.Claim(ctx, transitionID, h.config.DedupTTL)
	if err != nil {
		return err
	}
	if !claimed {
		// Already delivered by this or another worker.
		return nil
	}

	if err := h.notifier.Notify(ctx, Notification{
		TransitionID: transitionID,
		EventType:    string(event.EventType()),
		AggregateID:  event.AggregateID(),
		OccurredAt:   event.OccurredAt(),
		Payload:      event.Payload(),
	}); err != nil {
		// Give the claim back so a redelivery can try again.
		_ = h.dedup.Unclaim(ctx, transitionID)
		h.log.Error("webhook delivery failed",
			logger.Err(err),
			logger.String("transition_id", transitionID),
		)
		return err
	}

	if h.config.IssueAttestations {
		h.issueAttestation(ctx, event)
	}
	return nil
}

// issueAttestation mints the attestation matching the transition, if any.
// Already-issued is expected on redelivery and is not an error.
func (h *OnTerminalTransitionHandler) issueAttestation(ctx context.Context, event shared.Event) {
	var kind attestation.SubjectKind
	switch event.EventType() {
	case shared.EventCommitmentCompleted, shared.EventCommitmentFailed:
		kind = attestation.SubjectCommitmentOutcome
	case shared.EventSessionVerified, shared.EventDisputeResolved:
		kind = attestation.SubjectTutorSession
	default:
		return
	}

	_, err := h.attestation.Handle(ctx, command.IssueAttestationCommand{
		SubjectKind: string(kind),
		SubjectID:   event.AggregateID(),
	})
	if err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
		h.log.Error("attestation issuance failed",
			logger.Err(err),
			logger.String("subject_kind", string(kind)),
			logger.String("subject_id", event.AggregateID()),
		)
	}
}

// extractTransitionID pulls the dedup key out of the event payload.
func extractTransitionID(event shared.Event) string {
	if id, ok := event.Payload()["transition_id"].(string); ok {
		return id
	}
	return ""
}
