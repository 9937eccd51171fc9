package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/userprod/account-service/internal/config"
	"github.com/userprod/account-service/internal/models"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host:     "db",
		Port:     "5432",
		User:     "accounts",
		Password: "secret",
		Name:     "accounts",
	})
	assert.Equal(t, "postgres://accounts:secret@db:5432/accounts?sslmode=disable&timezone=UTC", dsn)
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.DBConfig{
		Host:     "db",
		Port:     "3306",
		User:     "root",
		Password: "pw",
		Name:     "accounts",
	})
	assert.Equal(t, "root:pw@tcp(db:3306)/accounts?charset=utf8mb4&parseTime=True&loc=UTC", dsn)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, config.DriverSQLite))
	require.NoError(t, Ping(ctx, db))

	assert.True(t, db.Migrator().HasTable(&models.User{}))
	assert.True(t, db.Migrator().HasTable(&models.Image{}))
	assert.True(t, db.Migrator().HasIndex(&models.User{}, "Email"))
}

func TestMigrate_PostgresUsesGoose(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)

	original := gooseUp
	t.Cleanup(func() { gooseUp = original })

	called := false
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		called = true
		assert.Equal(t, ".", dir)
		return errors.New("boom")
	}

	err = Migrate(context.Background(), db, config.DriverPostgres)
	assert.True(t, called)
	assert.ErrorContains(t, err, "boom")
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsDir()
	require.NoError(t, err)
	assert.Contains(t, entries, "00001_create_users.sql")
	assert.Contains(t, entries, "00002_create_images.sql")
}
