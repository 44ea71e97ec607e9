package command

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/attestation"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

type attestationFixture struct {
	handler         *IssueAttestationHandler
	issuer          *attestation.Issuer
	attestationRepo *fakeAttestationRepo
	commitmentRepo  *fakeCommitmentRepo
	sessionRepo     *fakeSessionRepo
	claimRepo       *fakeClaimRepo
	publisher       *capturePublisher
}

func newAttestationFixture(t *testing.T) *attestationFixture {
	t.Helper()
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	issuer, err := attestation.NewIssuer(key, 365*24*time.Hour)
	require.NoError(t, err)

	f := &attestationFixture{
		issuer:          issuer,
		attestationRepo: newFakeAttestationRepo(),
		commitmentRepo:  newFakeCommitmentRepo(),
		sessionRepo:     newFakeSessionRepo(),
		claimRepo:       newFakeClaimRepo(),
		publisher:       &capturePublisher{},
	}
	f.handler = NewIssueAttestationHandler(
		issuer, f.attestationRepo, f.commitmentRepo, f.sessionRepo, f.claimRepo, f.publisher,
	)
	return f
}

func TestIssueAttestation(t *testing.T) {
	ctx := context.Background()

	t.Run("attests a resolved commitment outcome", func(t *testing.T) {
		f := newAttestationFixture(t)

		c := newActiveCommitment(t, 1)
		require.NoError(t, c.ApplyProgress(1, uuid.NewString(), time.Now().UTC()))
		f.commitmentRepo.put(c)

		a, err := f.handler.Handle(ctx, IssueAttestationCommand{
			SubjectKind: string(attestation.SubjectCommitmentOutcome),
			SubjectID:   c.ID,
		})
		require.NoError(t, err)

		assert.Equal(t, attestation.SubjectCommitmentOutcome, a.Subject.Kind)
		assert.Equal(t, c.ID, a.Subject.ID)
		assert.True(t, a.Subject.Terminal)
		assert.Equal(t, "completed:1", a.Subject.MetricValue)

		// An external consumer holding the public key can check integrity.
		require.NoError(t, attestation.Verify(a, f.issuer.PublicKey(), time.Now().UTC()))

		assert.Len(t, f.publisher.published(shared.EventAttestationIssued), 1)
	})

	t.Run("progress milestone does not require a terminal subject", func(t *testing.T) {
		f := newAttestationFixture(t)

		c := newActiveCommitment(t, 10)
		require.NoError(t, c.ApplyProgress(4, uuid.NewString(), time.Now().UTC()))
		f.commitmentRepo.put(c)

		a, err := f.handler.Handle(ctx, IssueAttestationCommand{
			SubjectKind: string(attestation.SubjectProgressMilestone),
			SubjectID:   c.ID,
		})
		require.NoError(t, err)

		assert.False(t, a.Subject.Terminal)
		assert.Equal(t, "4", a.Subject.MetricValue)
	})

	t.Run("open commitment outcome is rejected", func(t *testing.T) {
		f := newAttestationFixture(t)
		f.commitmentRepo.put(newActiveCommitment(t, 10))

		_, err := f.handler.Handle(ctx, IssueAttestationCommand{
			SubjectKind: string(attestation.SubjectCommitmentOutcome),
			SubjectID:   "11111111-2222-3333-4444-555555555555",
		})
		assert.ErrorIs(t, err, shared.ErrNotTerminal)
	})

	t.Run("one live attestation per subject", func(t *testing.T) {
		f := newAttestationFixture(t)

		c := newActiveCommitment(t, 1)
		require.NoError(t, c.ApplyProgress(1, uuid.NewString(), time.Now().UTC()))
		f.commitmentRepo.put(c)

		cmd := IssueAttestationCommand{
			SubjectKind: string(attestation.SubjectCommitmentOutcome),
			SubjectID:   c.ID,
		}
		_, err := f.handler.Handle(ctx, cmd)
		require.NoError(t, err)

		_, err = f.handler.Handle(ctx, cmd)
		assert.ErrorIs(t, err, shared.ErrAlreadyIssued)
	})

	t.Run("attests a completed tutor session", func(t *testing.T) {
		f := newAttestationFixture(t)

		escrowF := newEscrowFixture()
		s := escrowF.createSession(t)
		_, err := escrowF.handler.AcceptSession(ctx, s.ID, testTutorID)
		require.NoError(t, err)
		_, err = escrowF.handler.SubmitWork(ctx, s.ID, testTutorID, "covered the agenda")
		require.NoError(t, err)
		_, err = escrowF.handler.VerifySession(ctx, s.ID, testLearnerID)
		require.NoError(t, err)
		f.sessionRepo = escrowF.sessionRepo
		f.handler = NewIssueAttestationHandler(
			f.issuer, f.attestationRepo, f.commitmentRepo, f.sessionRepo, f.claimRepo, f.publisher,
		)

		a, err := f.handler.Handle(ctx, IssueAttestationCommand{
			SubjectKind: string(attestation.SubjectTutorSession),
			SubjectID:   s.ID,
		})
		require.NoError(t, err)
		assert.True(t, a.Subject.Terminal)
		assert.Equal(t, shared.LearnerID(testLearnerID), a.Subject.LearnerID)
	})

	t.Run("unknown subject kind is rejected", func(t *testing.T) {
		f := newAttestationFixture(t)

		_, err := f.handler.Handle(ctx, IssueAttestationCommand{
			SubjectKind: "vibes", SubjectID: "x",
		})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
