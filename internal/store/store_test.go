package store

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macroview/macrocorr/internal/corr"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func testRun() *Run {
	return &Run{
		ID:           uuid.MustParse("5f0c54a1-93a8-4f2f-9d0a-1c53e3a7b002"),
		CreatedAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Mode:         "returns",
		WindowMonths: 120,
		SeriesIDs:    []string{"spx", "gold"},
		Matrix: &corr.Matrix{
			IDs:    []string{"spx", "gold"},
			Labels: []string{"S&P 500", "Gold"},
			Window: corr.Window{Full: true, Length: 120},
			Vals: [][]float64{
				{1.0, math.NaN()},
				{math.NaN(), 1.0},
			},
		},
	}
}

func TestSaveRun(t *testing.T) {
	s, mock := mockStore(t)
	run := testRun()

	mock.ExpectExec("INSERT INTO correlation_runs").
		WithArgs(run.ID, run.CreatedAt, run.Mode, run.WindowMonths,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_UndefinedEntriesSerializeAsNull(t *testing.T) {
	run := testRun()
	payload, err := json.Marshal(matrixPayload{
		IDs:    run.Matrix.IDs,
		Labels: run.Matrix.Labels,
		Vals:   toPayloadVals(run.Matrix.Vals),
	})
	require.NoError(t, err, "NaN must never reach the JSON encoder")
	assert.Contains(t, string(payload), "null")

	var decoded matrixPayload
	require.NoError(t, json.Unmarshal(payload, &decoded))
	vals := fromPayloadVals(decoded.Vals)
	assert.Equal(t, 1.0, vals[0][0])
	assert.True(t, math.IsNaN(vals[0][1]))
}

func TestLatestRun(t *testing.T) {
	s, mock := mockStore(t)
	run := testRun()

	seriesJSON, err := json.Marshal(run.SeriesIDs)
	require.NoError(t, err)
	matrixJSON, err := json.Marshal(matrixPayload{
		IDs:    run.Matrix.IDs,
		Labels: run.Matrix.Labels,
		Vals:   toPayloadVals(run.Matrix.Vals),
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "created_at", "mode", "window_months", "series_ids", "full_matrix"}).
		AddRow(run.ID.String(), run.CreatedAt, run.Mode, run.WindowMonths, seriesJSON, matrixJSON)
	mock.ExpectQuery("SELECT id, created_at, mode, window_months, series_ids, full_matrix").
		WillReturnRows(rows)

	got, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Mode, got.Mode)
	assert.Equal(t, run.SeriesIDs, got.SeriesIDs)
	assert.Equal(t, run.Matrix.IDs, got.Matrix.IDs)
	assert.Equal(t, 1.0, got.Matrix.Vals[1][1])
	assert.True(t, math.IsNaN(got.Matrix.Vals[0][1]), "null round-trips back to undefined")
	assert.True(t, got.Matrix.Window.Full)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRun_EmptyStore(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectQuery("SELECT id, created_at, mode, window_months, series_ids, full_matrix").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "mode", "window_months", "series_ids", "full_matrix"}))

	got, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
