package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the observations table DDL. The coordinate CHECK constraints
// mirror the application-level validation so bad data cannot arrive through
// any side channel.
const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id               BIGSERIAL PRIMARY KEY,
	observed_at      TIMESTAMPTZ NOT NULL,
	timezone         TEXT        NOT NULL,
	latitude         DOUBLE PRECISION NOT NULL CHECK (latitude  BETWEEN  -90 AND  90),
	longitude        DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
	satellite_id     TEXT        NOT NULL,
	spectral_indices JSONB,
	notes            TEXT        NOT NULL DEFAULT '',
	payload          JSONB       NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_observations_observed_at ON observations (observed_at);
CREATE INDEX IF NOT EXISTS idx_observations_coords      ON observations (latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_observations_satellite   ON observations (satellite_id);
`

// Migrate applies the schema. Idempotent; run at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
