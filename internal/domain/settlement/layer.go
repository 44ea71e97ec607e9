package settlement

import (
	"context"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT LAYER PORT
// The engine treats the settlement layer as an opaque external service:
// submit a payload, poll a status. The wire format behind the HTTP adapter
// is not the engine's concern.
// ══════════════════════════════════════════════════════════════════════════════

// TxStatus is the layer-reported state of a submitted transaction.
type TxStatus string

const (
	// TxPending - the layer has the transaction but no final outcome yet.
	TxPending TxStatus = "pending"
	// TxConfirmed - the transaction is final.
	TxConfirmed TxStatus = "confirmed"
	// TxRejected - the transaction was rejected and will never confirm.
	TxRejected TxStatus = "rejected"
	// TxUnknown - the layer does not recognize the reference.
	TxUnknown TxStatus = "unknown"
)

// Payload is the submission envelope for one money movement.
type Payload struct {
	// Kind - purpose of the movement.
	Kind Kind

	// SubjectID - the owning aggregate.
	SubjectID string

	// Beneficiary - the account money moves to (or from, for stakes).
	Beneficiary shared.LearnerID

	// Amount - the amount as a canonical decimal string.
	Amount shared.Amount

	// IdempotencyKey - layer-side duplicate guard.
	IdempotencyKey shared.IdempotencyKey
}

// Layer is the port to the external settlement service.
type Layer interface {
	// Submit sends a payload and returns the layer's transaction reference.
	// Submitting the same idempotency key twice returns the original reference.
	Submit(ctx context.Context, payload Payload) (shared.TxRef, error)

	// GetStatus polls the outcome of a submitted transaction.
	GetStatus(ctx context.Context, txRef shared.TxRef) (TxStatus, error)
}

// StatusOutcome pairs a settlement with its polled layer status.
type StatusOutcome struct {
	Settlement *Settlement
	Status     TxStatus
	Reason     string
}
