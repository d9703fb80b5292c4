package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/station-api/internal/models"
)

func TestStationRepositoryPublishArchivesPrevious(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStationRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM stations WHERE id = $1 FOR UPDATE")).
		WithArgs("station-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("station-1"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE station_versions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("version-old"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE station_versions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	archived, err := repo.Publish(context.Background(), "station-1", "version-new", now)
	require.NoError(t, err)
	require.NotNil(t, archived)
	require.Equal(t, "version-old", *archived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStationRepositoryPublishFirstVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("station-1"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE station_versions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE station_versions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	archived, err := repo.Publish(context.Background(), "station-1", "version-1", time.Now().UTC())
	require.NoError(t, err)
	require.Nil(t, archived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStationRepositoryPublishFailsWhenNotApproved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("station-1"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE station_versions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE station_versions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Publish(context.Background(), "station-1", "version-1", time.Now().UTC())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStationRepositoryCreateVersionWithServices(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStationRepository(db)
	kw := 150.0

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO station_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO station_services")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO charging_ports")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version := &models.StationVersion{
		StationID:      "station-1",
		VersionNo:      1,
		WorkflowStatus: models.WorkflowStatusDraft,
		Name:           "District 1 Hub",
		Parking:        models.ParkingFree,
		Visibility:     models.VisibilityPublic,
		PublicStatus:   models.PublicStatusActive,
		CreatedBy:      "provider-1",
	}
	services := []VersionServiceInput{{
		Service: models.StationService{ServiceType: models.ServiceTypeCharging},
		Ports:   []models.ChargingPort{{PowerType: models.PowerTypeDC, PowerKw: &kw, PortCount: 4}},
	}}
	require.NoError(t, repo.CreateVersion(context.Background(), version, services))
	require.NotEmpty(t, version.ID)
	require.Equal(t, version.ID, services[0].Service.StationVersionID)
	require.NoError(t, mock.ExpectationsWereMet())
}
