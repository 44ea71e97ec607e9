package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// Amounts are NUMERIC(30,8): eight fractional places match the reward
// rounding everywhere else in the engine.
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progress_events", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_commitments", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_escrow_sessions", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_scholarship", UpSQL: migration004Up, DownSQL: migration004Down},
		{Version: 5, Name: "create_settlements", UpSQL: migration005Up, DownSQL: migration005Down},
		{Version: 6, Name: "create_attestations", UpSQL: migration006Up, DownSQL: migration006Down},
	}
}

const migration001Up = `
CREATE TABLE progress_events (
	id              UUID PRIMARY KEY,
	learner_id      UUID NOT NULL,
	kind            TEXT NOT NULL,
	magnitude       BIGINT NOT NULL,
	source_id       TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	occurred_at     TIMESTAMPTZ NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_progress_events_learner_time
	ON progress_events (learner_id, occurred_at);
CREATE INDEX idx_progress_events_learner_kind_time
	ON progress_events (learner_id, kind, occurred_at);
`

const migration001Down = `DROP TABLE progress_events;`

const migration002Up = `
CREATE TABLE commitments (
	id            UUID PRIMARY KEY,
	learner_id    UUID NOT NULL,
	goal_type     TEXT NOT NULL,
	event_kind    TEXT NOT NULL,
	target        BIGINT NOT NULL,
	progress      BIGINT NOT NULL DEFAULT 0,
	stake         NUMERIC(30,8) NOT NULL,
	payout        NUMERIC(30,8) NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	deadline      TIMESTAMPTZ NOT NULL,
	stake_tx_ref  TEXT NOT NULL DEFAULT '',
	payout_tx_ref TEXT NOT NULL DEFAULT '',
	transition_id TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	activated_at  TIMESTAMPTZ,
	resolved_at   TIMESTAMPTZ,
	claimed_at    TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL,
	version       INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX idx_commitments_learner ON commitments (learner_id, created_at DESC);
CREATE INDEX idx_commitments_status ON commitments (status);
CREATE INDEX idx_commitments_deadline ON commitments (deadline) WHERE status = 'active';

-- One open goal per learner and goal type. The application checks first;
-- this constraint closes the race between two concurrent creates.
CREATE UNIQUE INDEX idx_commitments_open_goal
	ON commitments (learner_id, goal_type)
	WHERE status IN ('pending', 'active');
`

const migration002Down = `DROP TABLE commitments;`

const migration003Up = `
CREATE TABLE escrow_sessions (
	id             UUID PRIMARY KEY,
	learner_id     UUID NOT NULL,
	tutor_id       UUID NOT NULL,
	topic          TEXT NOT NULL,
	amount         NUMERIC(30,8) NOT NULL,
	status         TEXT NOT NULL,
	disposition    TEXT NOT NULL,
	tutor_payout   NUMERIC(30,8) NOT NULL DEFAULT 0,
	learner_refund NUMERIC(30,8) NOT NULL DEFAULT 0,
	platform_fee   NUMERIC(30,8) NOT NULL DEFAULT 0,
	work_summary   TEXT NOT NULL DEFAULT '',
	dispute_reason TEXT NOT NULL DEFAULT '',
	funds_tx_ref   TEXT NOT NULL DEFAULT '',
	payout_tx_ref  TEXT NOT NULL DEFAULT '',
	transition_id  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	accepted_at    TIMESTAMPTZ,
	submitted_at   TIMESTAMPTZ,
	resolved_at    TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL,
	version        INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX idx_escrow_sessions_learner ON escrow_sessions (learner_id, created_at DESC);
CREATE INDEX idx_escrow_sessions_tutor ON escrow_sessions (tutor_id, created_at DESC);
CREATE INDEX idx_escrow_sessions_status ON escrow_sessions (status);
`

const migration003Down = `DROP TABLE escrow_sessions;`

const migration004Up = `
CREATE TABLE scholarship_rounds (
	id            UUID PRIMARY KEY,
	status        TEXT NOT NULL,
	pool          NUMERIC(30,8) NOT NULL,
	distributed   NUMERIC(30,8) NOT NULL DEFAULT 0,
	rollover      NUMERIC(30,8) NOT NULL DEFAULT 0,
	window_from   TIMESTAMPTZ NOT NULL,
	window_to     TIMESTAMPTZ NOT NULL,
	transition_id TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	finalized_at  TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL,
	version       INTEGER NOT NULL DEFAULT 1
);

-- At most one open round at a time.
CREATE UNIQUE INDEX idx_scholarship_rounds_open
	ON scholarship_rounds ((status)) WHERE status = 'open';

CREATE TABLE scholarship_claims (
	id                  UUID PRIMARY KEY,
	round_id            UUID NOT NULL REFERENCES scholarship_rounds (id),
	learner_id          UUID NOT NULL,
	improvement_percent NUMERIC(30,8) NOT NULL,
	timeframe_days      INTEGER NOT NULL,
	evidence            TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	reward              NUMERIC(30,8) NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL,
	verified_at         TIMESTAMPTZ,
	updated_at          TIMESTAMPTZ NOT NULL,
	version             INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX idx_scholarship_claims_round ON scholarship_claims (round_id, status);
CREATE INDEX idx_scholarship_claims_learner ON scholarship_claims (learner_id, created_at DESC);

CREATE TABLE scholarship_donations (
	id         UUID PRIMARY KEY,
	round_id   UUID NOT NULL REFERENCES scholarship_rounds (id),
	claim_id   UUID NOT NULL REFERENCES scholarship_claims (id),
	donor_id   UUID NOT NULL,
	amount     NUMERIC(30,8) NOT NULL,
	tx_ref     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_scholarship_donations_round ON scholarship_donations (round_id);
CREATE INDEX idx_scholarship_donations_claim ON scholarship_donations (claim_id);
`

const migration004Down = `
DROP TABLE scholarship_donations;
DROP TABLE scholarship_claims;
DROP TABLE scholarship_rounds;
`

const migration005Up = `
CREATE TABLE settlements (
	id              UUID PRIMARY KEY,
	kind            TEXT NOT NULL,
	subject_id      UUID NOT NULL,
	learner_id      UUID NOT NULL,
	amount          NUMERIC(30,8) NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	tx_ref          TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	submitted_at    TIMESTAMPTZ,
	resolved_at     TIMESTAMPTZ,
	updated_at      TIMESTAMPTZ NOT NULL,
	version         INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX idx_settlements_status_created ON settlements (status, created_at);
CREATE INDEX idx_settlements_subject ON settlements (subject_id);
`

const migration005Down = `DROP TABLE settlements;`

const migration006Up = `
CREATE TABLE attestations (
	id           UUID PRIMARY KEY,
	subject_kind TEXT NOT NULL,
	subject_id   UUID NOT NULL,
	learner_id   UUID NOT NULL,
	metric_key   TEXT NOT NULL,
	metric_value TEXT NOT NULL,
	terminal     BOOLEAN NOT NULL,
	payload_hash BYTEA NOT NULL,
	signature    BYTEA NOT NULL,
	issued_at    TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_attestations_learner ON attestations (learner_id, issued_at DESC);
CREATE INDEX idx_attestations_subject ON attestations (subject_kind, subject_id, expires_at DESC);
`

const migration006Down = `DROP TABLE attestations;`
