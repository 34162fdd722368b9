package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"observatory/internal/observations"
	"observatory/internal/types"
)

// ObservationRepository provides data access for the observations table.
type ObservationRepository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewObservationRepository creates a repository backed by the given pool.
func NewObservationRepository(pool *pgxpool.Pool) *ObservationRepository {
	return &ObservationRepository{db: pool, pool: pool}
}

// withTx returns a copy of the repository that executes against the given
// transaction. Batch operations use this so every insert in a batch commits
// or rolls back together.
func (r *ObservationRepository) withTx(tx pgx.Tx) *ObservationRepository {
	return &ObservationRepository{db: tx, pool: r.pool}
}

// obsColumns is the standard column set for observation queries. Scan order
// must match.
const obsColumns = `id, observed_at, timezone, latitude, longitude,
	satellite_id, spectral_indices, notes, payload, created_at, updated_at`

func scanObservation(row pgx.Row) (*types.Observation, error) {
	var o types.Observation
	err := row.Scan(
		&o.ID,
		&o.Timestamp,
		&o.Timezone,
		&o.Latitude,
		&o.Longitude,
		&o.SatelliteID,
		&o.SpectralIndices,
		&o.Notes,
		&o.Payload,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts a new observation and populates the DB-assigned ID and
// timestamps on the passed struct.
func (r *ObservationRepository) Create(ctx context.Context, o *types.Observation) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO observations (
			observed_at, timezone, latitude, longitude,
			satellite_id, spectral_indices, notes, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		o.Timestamp,
		o.Timezone,
		o.Latitude,
		o.Longitude,
		o.SatelliteID,
		o.SpectralIndices,
		o.Notes,
		o.Payload,
	)
	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create observation", err)
	}
	return nil
}

// CreateBatch inserts a set of already-validated observations in a single
// transaction. All inserts commit or roll back together; per-record
// validation failures are handled before this point.
func (r *ObservationRepository) CreateBatch(ctx context.Context, batch []*types.Observation) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txRepo := r.withTx(tx)
	for _, o := range batch {
		if err := txRepo.Create(ctx, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit batch", err)
	}
	return nil
}

// ReplaceBatch writes a set of already-validated replacements in a single
// transaction. All updates commit or roll back together, mirroring
// CreateBatch.
func (r *ObservationRepository) ReplaceBatch(ctx context.Context, batch []*types.Observation) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txRepo := r.withTx(tx)
	for _, o := range batch {
		if err := txRepo.Update(ctx, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit batch", err)
	}
	return nil
}

// GetByID retrieves an observation by ID. Returns ErrCodeNotFoundObservation
// when no row matches.
func (r *ObservationRepository) GetByID(ctx context.Context, id int64) (*types.Observation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+obsColumns+` FROM observations WHERE id = $1`, id)

	o, err := scanObservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundObservation, "observation not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve observation", err)
	}
	return o, nil
}

// List retrieves observations matching the query, ordered by ID. Bounding
// box and ID constraints are pushed into the SQL WHERE clause; the full
// query is then re-evaluated in memory so date-range and free-form payload
// filters behave identically across store backends.
func (r *ObservationRepository) List(ctx context.Context, q types.ObservationQuery) ([]*types.Observation, error) {
	var conditions []string
	var args []any
	argIdx := 1

	addCond := func(cond string, arg any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, arg)
		argIdx++
	}

	if q.MinLat != nil {
		addCond("latitude >= $%d", *q.MinLat)
	}
	if q.MaxLat != nil {
		addCond("latitude <= $%d", *q.MaxLat)
	}
	if q.MinLon != nil {
		addCond("longitude >= $%d", *q.MinLon)
	}
	if q.MaxLon != nil {
		addCond("longitude <= $%d", *q.MaxLon)
	}
	if q.ID != nil {
		addCond("id = $%d", *q.ID)
	}

	sql := `SELECT ` + obsColumns + ` FROM observations`
	for i, cond := range conditions {
		if i == 0 {
			sql += " WHERE " + cond
		} else {
			sql += " AND " + cond
		}
	}
	sql += " ORDER BY id"

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list observations", err)
	}
	defer rows.Close()

	var results []*types.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan observation", err)
		}
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list observations", err)
	}

	return observations.Filter(results, q), nil
}

// Update writes the full mutable field set of an existing observation.
// Returns ErrCodeNotFoundObservation when no row matches.
func (r *ObservationRepository) Update(ctx context.Context, o *types.Observation) error {
	row := r.db.QueryRow(ctx,
		`UPDATE observations SET
			observed_at = $1,
			timezone = $2,
			latitude = $3,
			longitude = $4,
			satellite_id = $5,
			spectral_indices = $6,
			notes = $7,
			payload = $8,
			updated_at = NOW()
		 WHERE id = $9
		 RETURNING updated_at`,
		o.Timestamp,
		o.Timezone,
		o.Latitude,
		o.Longitude,
		o.SatelliteID,
		o.SpectralIndices,
		o.Notes,
		o.Payload,
		o.ID,
	)
	if err := row.Scan(&o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundObservation, "observation not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update observation", err)
	}
	return nil
}

// Delete removes an observation. Returns ErrCodeNotFoundObservation when no
// row matches.
func (r *ObservationRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM observations WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete observation", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundObservation, "observation not found", nil)
	}
	return nil
}
