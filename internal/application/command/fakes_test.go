package command

import (
	"context"
	"sync"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/attestation"
	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory repository fakes. They mirror the persistence contracts closely
// enough for handler tests: duplicate keys are rejected, reads return copies,
// and Update enforces the optimistic version check.
// ─────────────────────────────────────────────────────────────────────────────

type fakeProgressRepo struct {
	mu     sync.Mutex
	events map[string]*progress.Event
	byKey  map[shared.IdempotencyKey]string
	failOn error
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{
		events: make(map[string]*progress.Event),
		byKey:  make(map[shared.IdempotencyKey]string),
	}
}

func (r *fakeProgressRepo) Save(_ context.Context, e *progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return r.failOn
	}
	if _, dup := r.byKey[e.IdempotencyKey]; dup {
		return shared.ErrDuplicateEvent
	}
	cp := *e
	r.events[e.ID] = &cp
	r.byKey[e.IdempotencyKey] = e.ID
	return nil
}

func (r *fakeProgressRepo) GetByID(_ context.Context, id string) (*progress.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeProgressRepo) ExistsByKey(_ context.Context, key shared.IdempotencyKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byKey[key]
	return ok, nil
}

func (r *fakeProgressRepo) ListByLearner(_ context.Context, learnerID shared.LearnerID, kind progress.Kind, window shared.TimeRange) ([]*progress.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*progress.Event
	for _, e := range r.events {
		if e.LearnerID != learnerID {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		if !window.Contains(e.OccurredAt) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeProgressRepo) CountByLearner(_ context.Context, learnerID shared.LearnerID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.LearnerID == learnerID && !e.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeGuard struct {
	mu       sync.Mutex
	reserved map[shared.IdempotencyKey]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{reserved: make(map[shared.IdempotencyKey]bool)}
}

func (g *fakeGuard) Reserve(_ context.Context, key shared.IdempotencyKey, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reserved[key] {
		return false, nil
	}
	g.reserved[key] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, key shared.IdempotencyKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.reserved, key)
	return nil
}

type fakeCommitmentRepo struct {
	mu          sync.Mutex
	commitments map[string]*commitment.Commitment
}

func newFakeCommitmentRepo() *fakeCommitmentRepo {
	return &fakeCommitmentRepo{commitments: make(map[string]*commitment.Commitment)}
}

func (r *fakeCommitmentRepo) Create(_ context.Context, c *commitment.Commitment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.commitments {
		if existing.LearnerID == c.LearnerID && existing.GoalType == c.GoalType &&
			(existing.Status == commitment.StatusPending || existing.Status == commitment.StatusActive) {
			return shared.ErrDuplicateActiveGoal
		}
	}
	cp := *c
	r.commitments[c.ID] = &cp
	return nil
}

func (r *fakeCommitmentRepo) GetByID(_ context.Context, id string) (*commitment.Commitment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commitments[id]
	if !ok {
		return nil, shared.ErrCommitmentNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCommitmentRepo) Update(_ context.Context, c *commitment.Commitment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.commitments[c.ID]
	if !ok {
		return shared.ErrCommitmentNotFound
	}
	if stored.Version != c.Version {
		return shared.ErrOptimisticLock
	}
	cp := *c
	cp.Version++
	r.commitments[c.ID] = &cp
	c.Version++
	return nil
}

func (r *fakeCommitmentRepo) ListByLearner(_ context.Context, learnerID shared.LearnerID, _ commitment.ListOptions) ([]*commitment.Commitment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*commitment.Commitment
	for _, c := range r.commitments {
		if c.LearnerID == learnerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCommitmentRepo) ListByStatus(_ context.Context, status commitment.Status, _ commitment.ListOptions) ([]*commitment.Commitment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*commitment.Commitment
	for _, c := range r.commitments {
		if c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCommitmentRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*commitment.Commitment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*commitment.Commitment
	for _, c := range r.commitments {
		if c.Status == commitment.StatusActive && c.Deadline.Before(now) {
			cp := *c
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeCommitmentRepo) ListActiveByLearnerKind(_ context.Context, learnerID shared.LearnerID, eventKind string) ([]*commitment.Commitment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*commitment.Commitment
	for _, c := range r.commitments {
		if c.LearnerID != learnerID || string(c.EventKind) != eventKind {
			continue
		}
		if c.Status == commitment.StatusPending || c.Status == commitment.StatusActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCommitmentRepo) HasOpenGoal(_ context.Context, learnerID shared.LearnerID, goalType commitment.GoalType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commitments {
		if c.LearnerID == learnerID && c.GoalType == goalType &&
			(c.Status == commitment.StatusPending || c.Status == commitment.StatusActive) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCommitmentRepo) Count(_ context.Context, status commitment.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.commitments {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}

// put stores a commitment directly, bypassing the duplicate-goal check.
func (r *fakeCommitmentRepo) put(c *commitment.Commitment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.commitments[c.ID] = &cp
}

type fakeSettlementRepo struct {
	mu          sync.Mutex
	settlements map[string]*settlement.Settlement
	byKey       map[shared.IdempotencyKey]string
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{
		settlements: make(map[string]*settlement.Settlement),
		byKey:       make(map[shared.IdempotencyKey]string),
	}
}

func (r *fakeSettlementRepo) Create(_ context.Context, s *settlement.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byKey[s.IdempotencyKey]; dup {
		return shared.ErrAlreadyExists
	}
	cp := *s
	r.settlements[s.ID] = &cp
	r.byKey[s.IdempotencyKey] = s.ID
	return nil
}

func (r *fakeSettlementRepo) GetByID(_ context.Context, id string) (*settlement.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok {
		return nil, shared.ErrSettlementNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettlementRepo) GetByKey(_ context.Context, key shared.IdempotencyKey) (*settlement.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, shared.ErrSettlementNotFound
	}
	cp := *r.settlements[id]
	return &cp, nil
}

func (r *fakeSettlementRepo) Update(_ context.Context, s *settlement.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.settlements[s.ID]
	if !ok {
		return shared.ErrSettlementNotFound
	}
	if stored.Version != s.Version {
		return shared.ErrOptimisticLock
	}
	cp := *s
	cp.Version++
	r.settlements[s.ID] = &cp
	s.Version++
	return nil
}

func (r *fakeSettlementRepo) ListPending(_ context.Context, limit int) ([]*settlement.Settlement, error) {
	return r.listByStatus(settlement.StatusPending, limit, false), nil
}

func (r *fakeSettlementRepo) ListUnsubmitted(_ context.Context, limit int) ([]*settlement.Settlement, error) {
	return r.listByStatus(settlement.StatusPending, limit, true), nil
}

func (r *fakeSettlementRepo) ListFailed(_ context.Context, limit int) ([]*settlement.Settlement, error) {
	return r.listByStatus(settlement.StatusFailed, limit, false), nil
}

func (r *fakeSettlementRepo) listByStatus(status settlement.Status, limit int, unsubmittedOnly bool) []*settlement.Settlement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*settlement.Settlement
	for _, s := range r.settlements {
		if s.Status != status {
			continue
		}
		if unsubmittedOnly && s.TxRef != "" {
			continue
		}
		cp := *s
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (r *fakeSettlementRepo) CountByStatus(_ context.Context, status settlement.Status) (int, error) {
	return len(r.listByStatus(status, 0, false)), nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*escrow.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*escrow.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *escrow.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*escrow.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, s *escrow.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[s.ID]
	if !ok {
		return shared.ErrSessionNotFound
	}
	if stored.Version != s.Version {
		return shared.ErrOptimisticLock
	}
	cp := *s
	cp.Version++
	r.sessions[s.ID] = &cp
	s.Version++
	return nil
}

func (r *fakeSessionRepo) ListByLearner(_ context.Context, learnerID shared.LearnerID, _ escrow.ListOptions) ([]*escrow.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*escrow.Session
	for _, s := range r.sessions {
		if s.LearnerID == learnerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListByTutor(_ context.Context, tutorID shared.LearnerID, _ escrow.ListOptions) ([]*escrow.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*escrow.Session
	for _, s := range r.sessions {
		if s.TutorID == tutorID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListByStatus(_ context.Context, status escrow.Status, _ escrow.ListOptions) ([]*escrow.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*escrow.Session
	for _, s := range r.sessions {
		if s.Status == status {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeSessionLock struct {
	mu   sync.Mutex
	held map[string]bool
	deny bool
}

func newFakeSessionLock() *fakeSessionLock {
	return &fakeSessionLock{held: make(map[string]bool)}
}

func (l *fakeSessionLock) Acquire(_ context.Context, sessionID string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deny || l.held[sessionID] {
		return false, nil
	}
	l.held[sessionID] = true
	return true, nil
}

func (l *fakeSessionLock) Release(_ context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sessionID)
	return nil
}

type fakeRoundRepo struct {
	mu     sync.Mutex
	rounds map[string]*scholarship.Round
}

func newFakeRoundRepo() *fakeRoundRepo {
	return &fakeRoundRepo{rounds: make(map[string]*scholarship.Round)}
}

func (r *fakeRoundRepo) Create(_ context.Context, round *scholarship.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *round
	r.rounds[round.ID] = &cp
	return nil
}

func (r *fakeRoundRepo) GetByID(_ context.Context, id string) (*scholarship.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	round, ok := r.rounds[id]
	if !ok {
		return nil, shared.ErrRoundNotFound
	}
	cp := *round
	return &cp, nil
}

func (r *fakeRoundRepo) GetOpen(_ context.Context) (*scholarship.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, round := range r.rounds {
		if round.Status == scholarship.RoundOpen {
			cp := *round
			return &cp, nil
		}
	}
	return nil, shared.ErrRoundNotFound
}

func (r *fakeRoundRepo) Update(_ context.Context, round *scholarship.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rounds[round.ID]
	if !ok {
		return shared.ErrRoundNotFound
	}
	if stored.Version != round.Version {
		return shared.ErrOptimisticLock
	}
	cp := *round
	cp.Version++
	r.rounds[round.ID] = &cp
	round.Version++
	return nil
}

func (r *fakeRoundRepo) ListFinalized(_ context.Context, _ scholarship.ListOptions) ([]*scholarship.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scholarship.Round
	for _, round := range r.rounds {
		if round.Status == scholarship.RoundFinalized {
			cp := *round
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeClaimRepo struct {
	mu     sync.Mutex
	claims map[string]*scholarship.Claim
}

func newFakeClaimRepo() *fakeClaimRepo {
	return &fakeClaimRepo{claims: make(map[string]*scholarship.Claim)}
}

func (r *fakeClaimRepo) Create(_ context.Context, c *scholarship.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.claims[c.ID] = &cp
	return nil
}

func (r *fakeClaimRepo) GetByID(_ context.Context, id string) (*scholarship.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return nil, shared.ErrClaimNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeClaimRepo) Update(_ context.Context, c *scholarship.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.claims[c.ID]
	if !ok {
		return shared.ErrClaimNotFound
	}
	if stored.Version != c.Version {
		return shared.ErrOptimisticLock
	}
	cp := *c
	cp.Version++
	r.claims[c.ID] = &cp
	c.Version++
	return nil
}

func (r *fakeClaimRepo) ListByRound(_ context.Context, roundID string, status scholarship.ClaimStatus) ([]*scholarship.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scholarship.Claim
	for _, c := range r.claims {
		if c.RoundID != roundID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeClaimRepo) ListByLearner(_ context.Context, learnerID shared.LearnerID, _ scholarship.ListOptions) ([]*scholarship.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scholarship.Claim
	for _, c := range r.claims {
		if c.LearnerID == learnerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeDonationRepo struct {
	mu        sync.Mutex
	donations []*scholarship.Donation
}

func newFakeDonationRepo() *fakeDonationRepo {
	return &fakeDonationRepo{}
}

func (r *fakeDonationRepo) Create(_ context.Context, d *scholarship.Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.donations = append(r.donations, &cp)
	return nil
}

func (r *fakeDonationRepo) ListByRound(_ context.Context, roundID string) ([]*scholarship.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scholarship.Donation
	for _, d := range r.donations {
		if d.RoundID == roundID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDonationRepo) ListByClaim(_ context.Context, claimID string) ([]*scholarship.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scholarship.Donation
	for _, d := range r.donations {
		if d.ClaimID == claimID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAttestationRepo struct {
	mu           sync.Mutex
	attestations map[string]*attestation.Attestation
}

func newFakeAttestationRepo() *fakeAttestationRepo {
	return &fakeAttestationRepo{attestations: make(map[string]*attestation.Attestation)}
}

func (r *fakeAttestationRepo) Save(_ context.Context, a *attestation.Attestation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.attestations {
		if existing.Subject.Kind == a.Subject.Kind && existing.Subject.ID == a.Subject.ID {
			return shared.ErrAlreadyIssued
		}
	}
	cp := *a
	r.attestations[a.ID] = &cp
	return nil
}

func (r *fakeAttestationRepo) GetByID(_ context.Context, id string) (*attestation.Attestation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attestations[id]
	if !ok {
		return nil, shared.ErrAttestationNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAttestationRepo) GetLiveBySubject(_ context.Context, kind attestation.SubjectKind, subjectID string) (*attestation.Attestation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attestations {
		if a.Subject.Kind == kind && a.Subject.ID == subjectID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrAttestationNotFound
}

func (r *fakeAttestationRepo) ListByLearner(_ context.Context, learnerID shared.LearnerID, _ attestation.ListOptions) ([]*attestation.Attestation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*attestation.Attestation
	for _, a := range r.attestations {
		if a.Subject.LearnerID == learnerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) published(eventType shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
