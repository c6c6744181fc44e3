package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parcel-marketplace/internal/config"
)

func TestDSN(t *testing.T) {
	cfg := config.Config{DBUser: "app", DBHost: "db", DBPort: "3306", DBName: "parcel"}
	assert.Equal(t, "app@tcp(db:3306)/parcel?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true", DSN(cfg))

	cfg.DBPass = "s3cret"
	assert.Contains(t, DSN(cfg), "app:s3cret@tcp(db:3306)")
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"users", "credentials", "delivery_requests"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("denied"))
	err = EnsureSchema(context.Background(), db)
	assert.ErrorContains(t, err, "denied")
	require.NoError(t, mock.ExpectationsWereMet())
}
