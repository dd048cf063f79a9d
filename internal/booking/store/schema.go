// internal/booking/store/schema.go
package store

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    host_phone  TEXT NOT NULL DEFAULT '',
    capacity    INTEGER NOT NULL CHECK (capacity > 0),
    status      TEXT NOT NULL DEFAULT 'open',
    starts_at   TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS enrollments (
    id               TEXT PRIMARY KEY,
    session_id       TEXT NOT NULL REFERENCES sessions(id),
    participant_id   TEXT NOT NULL,
    participant_name TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    waitlist_pos     INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    cancelled_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_enrollments_session ON enrollments(session_id, status);

CREATE TABLE IF NOT EXISTS notification_events (
    seq             BIGSERIAL,
    id              TEXT PRIMARY KEY,
    type            TEXT NOT NULL,
    session_id      TEXT NOT NULL,
    enrollment_id   TEXT NOT NULL DEFAULT '',
    recipient       TEXT NOT NULL,
    payload         JSONB,
    delivery_status TEXT NOT NULL DEFAULT 'pending',
    attempts        INTEGER NOT NULL DEFAULT 0,
    published_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_events_unpublished ON notification_events(seq) WHERE published_at IS NULL;
`

// EnsureSchema creates the booking tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
