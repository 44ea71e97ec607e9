package attestation

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

func testIssuer(t *testing.T, expiry time.Duration) *Issuer {
	t.Helper()
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	issuer, err := NewIssuer(key, expiry)
	require.NoError(t, err)
	return issuer
}

func terminalSubject() Subject {
	return Subject{
		Kind:        SubjectCommitmentOutcome,
		ID:          "11111111-2222-3333-4444-555555555555",
		LearnerID:   "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		MetricKey:   "streak_days",
		MetricValue: "7",
		Terminal:    true,
	}
}

func TestIssue(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 45, 0, time.UTC)

	t.Run("issues a verifiable attestation", func(t *testing.T) {
		issuer := testIssuer(t, 72*time.Hour)

		att, err := issuer.Issue("att-1", terminalSubject(), now)
		require.NoError(t, err)

		assert.Len(t, att.PayloadHash, 32)
		assert.Len(t, att.Signature, ed25519.SignatureSize)
		assert.Equal(t, now.Add(72*time.Hour), att.ExpiresAt)
		assert.NoError(t, Verify(att, issuer.PublicKey(), now))
	})

	t.Run("rejects non-terminal subject", func(t *testing.T) {
		issuer := testIssuer(t, 72*time.Hour)
		subject := terminalSubject()
		subject.Terminal = false

		_, err := issuer.Issue("att-1", subject, now)
		assert.ErrorIs(t, err, shared.ErrNotTerminal)
	})

	t.Run("allows non-terminal progress milestones", func(t *testing.T) {
		issuer := testIssuer(t, 72*time.Hour)
		subject := terminalSubject()
		subject.Kind = SubjectProgressMilestone
		subject.Terminal = false

		_, err := issuer.Issue("att-1", subject, now)
		assert.NoError(t, err)
	})

	t.Run("deterministic hash for identical input", func(t *testing.T) {
		issuer := testIssuer(t, 72*time.Hour)

		a1, err := issuer.Issue("att-1", terminalSubject(), now)
		require.NoError(t, err)
		a2, err := issuer.Issue("att-2", terminalSubject(), now)
		require.NoError(t, err)

		assert.Equal(t, a1.PayloadHash, a2.PayloadHash)
	})
}

func TestVerify(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 45, 0, time.UTC)

	t.Run("rejects expired attestation", func(t *testing.T) {
		issuer := testIssuer(t, time.Hour)
		att, err := issuer.Issue("att-1", terminalSubject(), now)
		require.NoError(t, err)

		err = Verify(att, issuer.PublicKey(), now.Add(2*time.Hour))
		assert.ErrorIs(t, err, shared.ErrExpired)
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		issuer := testIssuer(t, 72*time.Hour)
		att, err := issuer.Issue("att-1", terminalSubject(), now)
		require.NoError(t, err)

		att.Subject.MetricValue = "700"
		err = Verify(att, issuer.PublicKey(), now)
		assert.ErrorIs(t, err, shared.ErrBadSignature)
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		issuer := testIssuer(t, 72*time.Hour)
		other := testIssuer(t, 72*time.Hour)
		att, err := issuer.Issue("att-1", terminalSubject(), now)
		require.NoError(t, err)

		err = Verify(att, other.PublicKey(), now)
		assert.ErrorIs(t, err, shared.ErrBadSignature)
	})
}
