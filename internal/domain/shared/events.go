// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Commitment events
	EventCommitmentCreated   EventType = "commitment.created"
	EventCommitmentActivated EventType = "commitment.activated"
	EventCommitmentProgress  EventType = "commitment.progress"
	EventCommitmentCompleted EventType = "commitment.completed"
	EventCommitmentFailed    EventType = "commitment.failed"
	EventCommitmentClaimed   EventType = "commitment.claimed"

	// Escrow session events
	EventSessionCreated   EventType = "escrow.session_created"
	EventSessionAccepted  EventType = "escrow.session_accepted"
	EventWorkSubmitted    EventType = "escrow.work_submitted"
	EventSessionVerified  EventType = "escrow.session_verified"
	EventSessionDisputed  EventType = "escrow.session_disputed"
	EventSessionCancelled EventType = "escrow.session_cancelled"
	EventDisputeResolved  EventType = "escrow.dispute_resolved"

	// Scholarship events
	EventClaimSubmitted EventType = "scholarship.claim_submitted"
	EventClaimVerified  EventType = "scholarship.claim_verified"
	EventDonationMade   EventType = "scholarship.donation_made"
	EventRoundFinalized EventType = "scholarship.round_finalized"
	EventPoolIncreased  EventType = "scholarship.pool_increased"

	// Attestation events
	EventAttestationIssued EventType = "attestation.issued"

	// Settlement events
	EventSettlementTracked   EventType = "settlement.tracked"
	EventSettlementConfirmed EventType = "settlement.confirmed"
	EventSettlementFailed    EventType = "settlement.failed"

	// Ingest events
	EventProgressRecorded EventType = "ingest.progress_recorded"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Commitment Events
// ═══════════════════════════════════════════════════════════════════════════

// CommitmentActivatedEvent is emitted when stake funding is confirmed.
type CommitmentActivatedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	GoalType  string `json:"goal_type"`
	Stake     string `json:"stake"`
	TxRef     string `json:"tx_ref"`
}

// Payload implements Event interface.
func (e CommitmentActivatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"goal_type":  e.GoalType,
		"stake":      e.Stake,
		"tx_ref":     e.TxRef,
	}
}

// NewCommitmentActivatedEvent creates a new CommitmentActivatedEvent.
func NewCommitmentActivatedEvent(commitmentID, learnerID, goalType, stake, txRef string) CommitmentActivatedEvent {
	return CommitmentActivatedEvent{
		BaseEvent: NewBaseEvent(EventCommitmentActivated, commitmentID),
		LearnerID: learnerID,
		GoalType:  goalType,
		Stake:     stake,
		TxRef:     txRef,
	}
}

// CommitmentResolvedEvent is emitted when a commitment reaches completed or failed.
// Terminal transitions drive attestation issuance and webhook notification.
type CommitmentResolvedEvent struct {
	BaseEvent
	LearnerID    string `json:"learner_id"`
	GoalType     string `json:"goal_type"`
	Outcome      string `json:"outcome"` // "completed" or "failed"
	Stake        string `json:"stake"`
	Payout       string `json:"payout"`        // stake * multiplier on success, "0" on failure
	TransitionID string `json:"transition_id"` // unique per transition, webhook dedup key
}

// Payload implements Event interface.
func (e CommitmentResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":    e.LearnerID,
		"goal_type":     e.GoalType,
		"outcome":       e.Outcome,
		"stake":         e.Stake,
		"payout":        e.Payout,
		"transition_id": e.TransitionID,
	}
}

// NewCommitmentResolvedEvent creates a new CommitmentResolvedEvent.
func NewCommitmentResolvedEvent(commitmentID, learnerID, goalType, outcome, stake, payout, transitionID string) CommitmentResolvedEvent {
	eventType := EventCommitmentCompleted
	if outcome == "failed" {
		eventType = EventCommitmentFailed
	}
	return CommitmentResolvedEvent{
		BaseEvent:    NewBaseEvent(eventType, commitmentID),
		LearnerID:    learnerID,
		GoalType:     goalType,
		Outcome:      outcome,
		Stake:        stake,
		Payout:       payout,
		TransitionID: transitionID,
	}
}

// ProgressRecordedEvent is emitted when a normalized progress event is accepted.
type ProgressRecordedEvent struct {
	BaseEvent
	LearnerID      string    `json:"learner_id"`
	Kind           string    `json:"kind"`
	Magnitude      int64     `json:"magnitude"`
	SourceID       string    `json:"source_id"`
	ActivityTime   time.Time `json:"activity_time"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Payload implements Event interface.
func (e ProgressRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":      e.LearnerID,
		"kind":            e.Kind,
		"magnitude":       e.Magnitude,
		"source_id":       e.SourceID,
		"activity_time":   e.ActivityTime.Format(time.RFC3339),
		"idempotency_key": e.IdempotencyKey,
	}
}

// NewProgressRecordedEvent creates a new ProgressRecordedEvent.
func NewProgressRecordedEvent(eventID, learnerID, kind string, magnitude int64, sourceID string, activityTime time.Time, key string) ProgressRecordedEvent {
	return ProgressRecordedEvent{
		BaseEvent:      NewBaseEvent(EventProgressRecorded, eventID),
		LearnerID:      learnerID,
		Kind:           kind,
		Magnitude:      magnitude,
		SourceID:       sourceID,
		ActivityTime:   activityTime,
		IdempotencyKey: key,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Escrow Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStateChangedEvent is emitted on every escrow session transition.
type SessionStateChangedEvent struct {
	BaseEvent
	LearnerID    string `json:"learner_id"`
	TutorID      string `json:"tutor_id"`
	FromState    string `json:"from_state"`
	ToState      string `json:"to_state"`
	Amount       string `json:"amount"`
	TransitionID string `json:"transition_id"`
}

// Payload implements Event interface.
func (e SessionStateChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":    e.LearnerID,
		"tutor_id":      e.TutorID,
		"from_state":    e.FromState,
		"to_state":      e.ToState,
		"amount":        e.Amount,
		"transition_id": e.TransitionID,
	}
}

// NewSessionStateChangedEvent creates a new SessionStateChangedEvent.
func NewSessionStateChangedEvent(eventType EventType, sessionID, learnerID, tutorID, fromState, toState, amount, transitionID string) SessionStateChangedEvent {
	return SessionStateChangedEvent{
		BaseEvent:    NewBaseEvent(eventType, sessionID),
		LearnerID:    learnerID,
		TutorID:      tutorID,
		FromState:    fromState,
		ToState:      toState,
		Amount:       amount,
		TransitionID: transitionID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Scholarship Events
// ═══════════════════════════════════════════════════════════════════════════

// RoundFinalizedEvent is emitted after deterministic matching completes.
type RoundFinalizedEvent struct {
	BaseEvent
	Pool         string `json:"pool"`
	Distributed  string `json:"distributed"`
	Rollover     string `json:"rollover"`
	ClaimCount   int    `json:"claim_count"`
	TransitionID string `json:"transition_id"`
}

// Payload implements Event interface.
func (e RoundFinalizedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"pool":          e.Pool,
		"distributed":   e.Distributed,
		"rollover":      e.Rollover,
		"claim_count":   e.ClaimCount,
		"transition_id": e.TransitionID,
	}
}

// NewRoundFinalizedEvent creates a new RoundFinalizedEvent.
func NewRoundFinalizedEvent(roundID, pool, distributed, rollover string, claimCount int, transitionID string) RoundFinalizedEvent {
	return RoundFinalizedEvent{
		BaseEvent:    NewBaseEvent(EventRoundFinalized, roundID),
		Pool:         pool,
		Distributed:  distributed,
		Rollover:     rollover,
		ClaimCount:   claimCount,
		TransitionID: transitionID,
	}
}

// PoolIncreasedEvent is emitted when a forfeited stake feeds the open round.
type PoolIncreasedEvent struct {
	BaseEvent
	Amount       string `json:"amount"`
	Source       string `json:"source"` // e.g., "forfeited_stake", "donation"
	CommitmentID string `json:"commitment_id,omitempty"`
}

// Payload implements Event interface.
func (e PoolIncreasedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":        e.Amount,
		"source":        e.Source,
		"commitment_id": e.CommitmentID,
	}
}

// NewPoolIncreasedEvent creates a new PoolIncreasedEvent.
func NewPoolIncreasedEvent(roundID, amount, source string) PoolIncreasedEvent {
	return PoolIncreasedEvent{
		BaseEvent: NewBaseEvent(EventPoolIncreased, roundID),
		Amount:    amount,
		Source:    source,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Attestation Events
// ═══════════════════════════════════════════════════════════════════════════

// AttestationIssuedEvent is emitted when a signed attestation is created.
type AttestationIssuedEvent struct {
	BaseEvent
	SubjectKind string    `json:"subject_kind"`
	SubjectID   string    `json:"subject_id"`
	LearnerID   string    `json:"learner_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Payload implements Event interface.
func (e AttestationIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_kind": e.SubjectKind,
		"subject_id":   e.SubjectID,
		"learner_id":   e.LearnerID,
		"expires_at":   e.ExpiresAt.Format(time.RFC3339),
	}
}

// NewAttestationIssuedEvent creates a new AttestationIssuedEvent.
func NewAttestationIssuedEvent(attestationID, subjectKind, subjectID, learnerID string, expiresAt time.Time) AttestationIssuedEvent {
	return AttestationIssuedEvent{
		BaseEvent:   NewBaseEvent(EventAttestationIssued, attestationID),
		SubjectKind: subjectKind,
		SubjectID:   subjectID,
		LearnerID:   learnerID,
		ExpiresAt:   expiresAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Settlement Events
// ═══════════════════════════════════════════════════════════════════════════

// SettlementOutcomeEvent is emitted when the settlement layer confirms or
// rejects a tracked transaction.
type SettlementOutcomeEvent struct {
	BaseEvent
	TxRef          string `json:"tx_ref"`
	Kind           string `json:"kind"` // owning component, e.g. "commitment_stake"
	IdempotencyKey string `json:"idempotency_key"`
	Confirmed      bool   `json:"confirmed"`
	Reason         string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e SettlementOutcomeEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"tx_ref":          e.TxRef,
		"kind":            e.Kind,
		"idempotency_key": e.IdempotencyKey,
		"confirmed":       e.Confirmed,
		"reason":          e.Reason,
	}
}

// NewSettlementOutcomeEvent creates a new SettlementOutcomeEvent.
func NewSettlementOutcomeEvent(settlementID, txRef, kind, key string, confirmed bool, reason string) SettlementOutcomeEvent {
	eventType := EventSettlementConfirmed
	if !confirmed {
		eventType = EventSettlementFailed
	}
	return SettlementOutcomeEvent{
		BaseEvent:      NewBaseEvent(eventType, settlementID),
		TxRef:          txRef,
		Kind:           kind,
		IdempotencyKey: key,
		Confirmed:      confirmed,
		Reason:         reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
