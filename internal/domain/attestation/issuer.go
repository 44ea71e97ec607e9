package attestation

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ISSUER
// Hashing is Keccak-256 over a canonical pipe-delimited payload so that
// settlement-side verifiers reproduce the digest byte for byte. The digest
// is signed with the engine's Ed25519 issuing key.
// ══════════════════════════════════════════════════════════════════════════════

// Issuer creates and verifies signed attestations.
type Issuer struct {
	key    ed25519.PrivateKey
	expiry time.Duration
}

// NewIssuer creates an Issuer with the given signing key and expiry window.
func NewIssuer(key ed25519.PrivateKey, expiry time.Duration) (*Issuer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, shared.NewDomainError("attestation", "NewIssuer", shared.ErrInvalidInput, "invalid signing key size")
	}
	if expiry <= 0 {
		return nil, shared.NewDomainError("attestation", "NewIssuer", shared.ErrValueOutOfRange, "expiry must be positive")
	}
	return &Issuer{key: key, expiry: expiry}, nil
}

// PublicKey returns the verification key for external consumers.
func (i *Issuer) PublicKey() ed25519.PublicKey {
	return i.key.Public().(ed25519.PublicKey)
}

// Issue creates a signed attestation for the subject.
// Non-terminal subjects are rejected except for progress milestones.
func (i *Issuer) Issue(id string, subject Subject, now time.Time) (*Attestation, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	issuedAt := now.UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.expiry)

	hash := payloadHash(subject, issuedAt, expiresAt)
	signature := ed25519.Sign(i.key, hash)

	return &Attestation{
		ID:          id,
		Subject:     subject,
		PayloadHash: hash,
		Signature:   signature,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// Verify checks signature integrity and expiry against the given key.
// Used for audit; external consumers run the same check.
func Verify(a *Attestation, publicKey ed25519.PublicKey, now time.Time) error {
	if a.IsExpired(now) {
		return shared.ErrAttestationExpired
	}

	expected := payloadHash(a.Subject, a.IssuedAt, a.ExpiresAt)
	if len(expected) != len(a.PayloadHash) {
		return shared.ErrBadSignature
	}
	for i := range expected {
		if expected[i] != a.PayloadHash[i] {
			return shared.ErrBadSignature
		}
	}

	if !ed25519.Verify(publicKey, a.PayloadHash, a.Signature) {
		return shared.ErrBadSignature
	}
	return nil
}

// payloadHash computes Keccak-256 over the canonical payload encoding.
// Timestamps are encoded as Unix seconds so truncation is explicit.
func payloadHash(subject Subject, issuedAt, expiresAt time.Time) []byte {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		subject.Kind,
		subject.ID,
		subject.LearnerID,
		subject.MetricKey,
		subject.MetricValue,
		issuedAt.Unix(),
		expiresAt.Unix(),
	)

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(payload))
	return h.Sum(nil)
}
