package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

var requestColumns = []string{"id", "patient_name", "contact", "status", "request_time", "destination_lat", "destination_lng"}

func TestGormStore_GetRequestNotFound(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ambulance_requests" WHERE "ambulance_requests"."id" = $1 AND "ambulance_requests"."deleted_at" IS NULL`)).
		WithArgs(42, 1).
		WillReturnRows(sqlmock.NewRows(requestColumns))

	_, err := s.GetRequest(context.Background(), 42)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetRequestStorageError(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "ambulance_requests"`).
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetRequest(context.Background(), 42)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Mutate(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)

	testCases := []struct {
		name             string
		fn               MutateFunc
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedStatus   model.Status
		expectedErr      error
	}{
		{
			name: "Status change locks the row, saves and appends an event",
			fn: func(req *model.AmbulanceRequest) error {
				req.Status = model.StatusAssigned
				req.StatusUpdatedAt = now
				return nil
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "ambulance_requests" WHERE .* FOR UPDATE`).
					WithArgs(7, 1).
					WillReturnRows(sqlmock.NewRows(requestColumns).
						AddRow(7, "Sita", "98000", "Pending", now.Add(-time.Hour), 27.7, 85.33))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "ambulance_requests" SET`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "status_updates" ("ambulance_id","old_status","new_status","timestamp")`)).
					WithArgs(7, "Pending", "Assigned", now).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
				mock.ExpectCommit()
			},
			expectedStatus: model.StatusAssigned,
		},
		{
			name: "Field-only change saves without an event",
			fn: func(req *model.AmbulanceRequest) error {
				lat, lng := 27.71, 85.32
				req.PickupLat, req.PickupLng = &lat, &lng
				return nil
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "ambulance_requests" WHERE .* FOR UPDATE`).
					WithArgs(7, 1).
					WillReturnRows(sqlmock.NewRows(requestColumns).
						AddRow(7, "Sita", "98000", "Started", now.Add(-time.Hour), 27.7, 85.33))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "ambulance_requests" SET`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedStatus: model.StatusStarted,
		},
		{
			name: "ErrNoChange commits without writes",
			fn: func(req *model.AmbulanceRequest) error {
				return ErrNoChange
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "ambulance_requests" WHERE .* FOR UPDATE`).
					WithArgs(7, 1).
					WillReturnRows(sqlmock.NewRows(requestColumns).
						AddRow(7, "Sita", "98000", "Patient Reached", now.Add(-time.Hour), 27.7, 85.33))
				mock.ExpectCommit()
			},
			expectedStatus: model.StatusPatientReached,
		},
		{
			name: "Rejected transition rolls back",
			fn: func(req *model.AmbulanceRequest) error {
				return apperr.ErrInvalidTransition
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "ambulance_requests" WHERE .* FOR UPDATE`).
					WithArgs(7, 1).
					WillReturnRows(sqlmock.NewRows(requestColumns).
						AddRow(7, "Sita", "98000", "Rejected", now.Add(-time.Hour), 27.7, 85.33))
				mock.ExpectRollback()
			},
			expectedErr: apperr.ErrInvalidTransition,
		},
		{
			name: "Missing row is not found",
			fn: func(req *model.AmbulanceRequest) error {
				t.Fatal("fn must not run for a missing row")
				return nil
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT \* FROM "ambulance_requests" WHERE .* FOR UPDATE`).
					WithArgs(7, 1).
					WillReturnRows(sqlmock.NewRows(requestColumns))
				mock.ExpectRollback()
			},
			expectedErr: apperr.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			s := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			req, err := s.Mutate(context.Background(), 7, tc.fn)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expectedStatus, req.Status)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_AppendPingUnknownAmbulance(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "ambulance_requests" WHERE id = $1`)).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := s.AppendPing(context.Background(), &model.LocationPing{AmbulanceID: 99, Latitude: 1, Longitude: 2})
	assert.ErrorIs(t, err, apperr.ErrUnknownAmbulance)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_AppendPing(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)
	at := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "ambulance_requests" WHERE id = $1`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "ambulance_locations" ("ambulance_id","latitude","longitude","timestamp","status")`)).
		WithArgs(3, 27.7, 85.3, at, "Started").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	ping := &model.LocationPing{AmbulanceID: 3, Latitude: 27.7, Longitude: 85.3, Timestamp: at, Status: model.StatusStarted}
	require.NoError(t, s.AppendPing(context.Background(), ping))
	assert.Equal(t, uint(11), ping.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Search(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ambulance_requests" WHERE (patient_name LIKE $1 OR contact LIKE $2)`)).
		WithArgs("%sita%", "%sita%").
		WillReturnRows(sqlmock.NewRows(requestColumns).
			AddRow(1, "Sita", "98000", "Pending", time.Now(), 27.7, 85.33))

	reqs, err := s.Search(context.Background(), "sita")
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteRequestMissing(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "ambulance_requests" SET "deleted_at"=$1 WHERE "ambulance_requests"."id" = $2`)).
		WithArgs(Any{}, 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assert.ErrorIs(t, s.DeleteRequest(context.Background(), 5), apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequestRequiresDestination(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	err := s.CreateRequest(context.Background(), &model.AmbulanceRequest{PatientName: "Sita"}, nil)
	assert.True(t, apperr.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
