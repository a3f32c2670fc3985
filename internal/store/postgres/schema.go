package postgres

import "context"

// schema is applied idempotently at startup. The layout follows the logical
// model: per-entity rows keyed by stable ids, no monolithic document.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	exam_date    TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS licenses (
	license_key     TEXT PRIMARY KEY,
	owner_user_id   TEXT NOT NULL REFERENCES users (user_id),
	bound_device_id TEXT,
	expiry          CHAR(8) NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS revocations (
	kind       TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	revoked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, target_id)
);

CREATE TABLE IF NOT EXISTS progress (
	user_id         TEXT NOT NULL,
	test_id         TEXT NOT NULL,
	perfect_count   INT NOT NULL DEFAULT 0,
	recent_attempts TEXT[] NOT NULL DEFAULT '{}',
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, test_id)
);

CREATE TABLE IF NOT EXISTS device_seen (
	user_id      TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	last_seen_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, device_id)
);

CREATE INDEX IF NOT EXISTS idx_licenses_owner ON licenses (owner_user_id);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
