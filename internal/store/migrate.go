// internal/store/migrate.go
package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Migrate applies the schema. Statements are idempotent so the service can
// run it unconditionally at startup.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS members (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'student',
	status        TEXT NOT NULL DEFAULT 'active',
	valid_until   TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS credentials (
	member_id     UUID PRIMARY KEY REFERENCES members(id),
	password_hash TEXT NOT NULL,
	salt          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS books (
	id               UUID PRIMARY KEY,
	isbn             TEXT NOT NULL,
	title            TEXT NOT NULL,
	author           TEXT NOT NULL,
	number_of_copies INTEGER NOT NULL,
	available_copies INTEGER NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (available_copies >= 0 AND available_copies <= number_of_copies)
);

CREATE TABLE IF NOT EXISTS loans (
	id            UUID PRIMARY KEY,
	member_id     UUID NOT NULL REFERENCES members(id),
	book_id       UUID NOT NULL REFERENCES books(id),
	issue_date    TIMESTAMPTZ NOT NULL,
	due_date      TIMESTAMPTZ NOT NULL,
	return_date   TIMESTAMPTZ,
	status        TEXT NOT NULL DEFAULT 'issued',
	fine_amount   NUMERIC(10,2) NOT NULL DEFAULT 0,
	renewal_count INTEGER NOT NULL DEFAULT 0,
	max_renewals  INTEGER NOT NULL DEFAULT 2
);
CREATE INDEX IF NOT EXISTS idx_loans_book_status ON loans(book_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_member_status ON loans(member_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_status_due ON loans(status, due_date);

CREATE TABLE IF NOT EXISTS reservations (
	id               UUID PRIMARY KEY,
	member_id        UUID NOT NULL REFERENCES members(id),
	book_id          UUID NOT NULL REFERENCES books(id),
	reservation_date TIMESTAMPTZ NOT NULL,
	expiry_date      TIMESTAMPTZ NOT NULL,
	pickup_deadline  TIMESTAMPTZ,
	status           TEXT NOT NULL DEFAULT 'active',
	queue_position   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reservations_book_status ON reservations(book_id, status, queue_position);
CREATE INDEX IF NOT EXISTS idx_reservations_member ON reservations(member_id, status);

CREATE TABLE IF NOT EXISTS fines (
	id           UUID PRIMARY KEY,
	member_id    UUID NOT NULL REFERENCES members(id),
	loan_id      UUID REFERENCES loans(id),
	amount       NUMERIC(10,2) NOT NULL,
	reason       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	paid_date    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_fines_member_status ON fines(member_id, status);
CREATE INDEX IF NOT EXISTS idx_fines_loan_status ON fines(loan_id, status);

CREATE TABLE IF NOT EXISTS holidays (
	id           UUID PRIMARY KEY,
	holiday_date DATE NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	recurring    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS policy_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS events (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_id   UUID NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	event_data     JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_id, id);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}
