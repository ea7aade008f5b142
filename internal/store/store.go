// Package store persists pipeline runs to Postgres so successive runs
// can be compared without re-deriving matrices from raw snapshots. The
// store is optional; the pipeline runs fully without a DSN.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/macroview/macrocorr/internal/corr"
)

// Run is one pipeline run's metadata plus its full-period matrix.
type Run struct {
	ID           uuid.UUID `db:"id"`
	CreatedAt    time.Time `db:"created_at"`
	Mode         string    `db:"mode"`
	WindowMonths int       `db:"window_months"`
	SeriesIDs    []string  `db:"-"`
	Matrix       *corr.Matrix
}

// Store wraps a Postgres connection for run persistence.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}
	db.SetMaxOpenConns(4)
	return &Store{db: db, timeout: 10 * time.Second}, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, timeout: 10 * time.Second}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// matrixPayload is the JSON shape persisted for a matrix. Undefined
// correlations (NaN in memory) round-trip as JSON null.
type matrixPayload struct {
	IDs    []string     `json:"ids"`
	Labels []string     `json:"labels"`
	Vals   [][]*float64 `json:"vals"`
}

func toPayloadVals(vals [][]float64) [][]*float64 {
	out := make([][]*float64, len(vals))
	for i, row := range vals {
		out[i] = make([]*float64, len(row))
		for j, v := range row {
			if corr.IsDefined(v) {
				val := v
				out[i][j] = &val
			}
		}
	}
	return out
}

func fromPayloadVals(vals [][]*float64) [][]float64 {
	out := make([][]float64, len(vals))
	for i, row := range vals {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v != nil {
				out[i][j] = *v
			} else {
				out[i][j] = math.NaN()
			}
		}
	}
	return out
}

// SaveRun inserts one run and its full-period matrix.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	seriesJSON, err := json.Marshal(run.SeriesIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal series ids: %w", err)
	}
	matrixJSON, err := json.Marshal(matrixPayload{
		IDs:    run.Matrix.IDs,
		Labels: run.Matrix.Labels,
		Vals:   toPayloadVals(run.Matrix.Vals),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}

	query := `
		INSERT INTO correlation_runs
		(id, created_at, mode, window_months, series_ids, full_matrix)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, query,
		run.ID, run.CreatedAt, run.Mode, run.WindowMonths, seriesJSON, matrixJSON); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// LatestRun returns the most recent persisted run, or nil when the store
// is empty.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, created_at, mode, window_months, series_ids, full_matrix
		FROM correlation_runs
		ORDER BY created_at DESC
		LIMIT 1`
	row := s.db.QueryRowxContext(ctx, query)

	var (
		run        Run
		seriesJSON []byte
		matrixJSON []byte
	)
	err := row.Scan(&run.ID, &run.CreatedAt, &run.Mode, &run.WindowMonths, &seriesJSON, &matrixJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	if err := json.Unmarshal(seriesJSON, &run.SeriesIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal series ids: %w", err)
	}
	var payload matrixPayload
	if err := json.Unmarshal(matrixJSON, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal matrix: %w", err)
	}
	run.Matrix = &corr.Matrix{
		IDs:    payload.IDs,
		Labels: payload.Labels,
		Vals:   fromPayloadVals(payload.Vals),
		Window: corr.Window{Full: true, Length: run.WindowMonths},
	}
	return &run, nil
}

// Schema is the DDL for the run store, applied out of band.
const Schema = `
CREATE TABLE IF NOT EXISTS correlation_runs (
	id            UUID PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL,
	mode          TEXT NOT NULL,
	window_months INTEGER NOT NULL,
	series_ids    JSONB NOT NULL,
	full_matrix   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS correlation_runs_created_at_idx
	ON correlation_runs (created_at DESC);
`
