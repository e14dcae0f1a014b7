package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the relational layout of the authoritative store. Applied by
// EnsureSchema for development bootstrap and container tests; production
// deployments run it through their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS businesses (
    id               UUID PRIMARY KEY,
    name             TEXT NOT NULL,
    timezone         TEXT NOT NULL DEFAULT 'UTC',
    refresh_interval INT NOT NULL DEFAULT 30,
    alert_threshold  DOUBLE PRECISION NOT NULL DEFAULT 0.9,
    reset_rule       TEXT NOT NULL DEFAULT 'manual',
    retain_scan_pii  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS venues (
    id          UUID PRIMARY KEY,
    business_id UUID NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    address     TEXT NOT NULL DEFAULT '',
    city        TEXT NOT NULL DEFAULT '',
    region      TEXT NOT NULL DEFAULT '',
    postal_code TEXT NOT NULL DEFAULT '',
    capacity    INT NOT NULL DEFAULT 0,
    enforcement TEXT NOT NULL DEFAULT 'WARN_ONLY',
    status      TEXT NOT NULL DEFAULT 'active',
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS areas (
    id               UUID PRIMARY KEY,
    venue_id         UUID NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
    name             TEXT NOT NULL,
    default_capacity INT NOT NULL DEFAULT 0,
    counting_mode    TEXT NOT NULL DEFAULT 'standard',
    active           BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS devices (
    id        UUID PRIMARY KEY,
    area_id   UUID NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
    name      TEXT NOT NULL,
    flow_mode TEXT NOT NULL DEFAULT 'BIDIRECTIONAL',
    buttons   JSONB NOT NULL DEFAULT '[]',
    active    BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS users (
    id          UUID PRIMARY KEY,
    business_id UUID NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    email       TEXT NOT NULL DEFAULT '',
    role        TEXT NOT NULL DEFAULT 'door',
    venue_ids   JSONB NOT NULL DEFAULT '[]',
    area_ids    JSONB NOT NULL DEFAULT '[]',
    device_ids  JSONB NOT NULL DEFAULT '[]',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS occupancy_snapshots (
    area_id    UUID PRIMARY KEY REFERENCES areas(id) ON DELETE CASCADE,
    occupancy  INT NOT NULL DEFAULT 0 CHECK (occupancy >= 0),
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS count_events (
    id          UUID PRIMARY KEY,
    business_id UUID NOT NULL,
    venue_id    UUID NOT NULL,
    area_id     UUID NOT NULL,
    device_id   UUID NOT NULL,
    user_id     UUID NOT NULL,
    delta       INT NOT NULL,
    flow_type   TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS count_events_business_time ON count_events (business_id, occurred_at DESC);

CREATE TABLE IF NOT EXISTS scan_events (
    id            UUID PRIMARY KEY,
    business_id   UUID NOT NULL,
    venue_id      UUID NOT NULL,
    user_id       UUID NOT NULL,
    result        TEXT NOT NULL,
    denial_reason TEXT NOT NULL DEFAULT '',
    age           INT NOT NULL DEFAULT 0,
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    date_of_birth TEXT NOT NULL DEFAULT '',
    id_number     TEXT NOT NULL DEFAULT '',
    issuing_state TEXT NOT NULL DEFAULT '',
    client_device TEXT NOT NULL DEFAULT '',
    scanned_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scan_events_business_time ON scan_events (business_id, scanned_at DESC);

CREATE TABLE IF NOT EXISTS staff_bans (
    id          UUID PRIMARY KEY,
    business_id UUID NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
    user_id     UUID NOT NULL,
    scope       TEXT NOT NULL,
    venue_ids   JSONB NOT NULL DEFAULT '[]',
    status      TEXT NOT NULL DEFAULT 'ACTIVE',
    reason      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL,
    revoked_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS patrons (
    id            UUID PRIMARY KEY,
    business_id   UUID NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    date_of_birth TEXT NOT NULL DEFAULT '',
    id_number     TEXT NOT NULL DEFAULT '',
    issuing_state TEXT NOT NULL DEFAULT '',
    id_digest     TEXT NOT NULL DEFAULT '',
    name_digest   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS patron_bans (
    id            UUID PRIMARY KEY,
    patron_id     UUID NOT NULL REFERENCES patrons(id) ON DELETE CASCADE,
    category      TEXT NOT NULL DEFAULT '',
    all_locations BOOLEAN NOT NULL DEFAULT FALSE,
    venue_ids     JSONB NOT NULL DEFAULT '[]',
    status        TEXT NOT NULL DEFAULT 'ACTIVE',
    expires_at    TIMESTAMPTZ NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies the schema idempotently.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
