package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"carro-de-som/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrationsFS, migrationsDir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		data, err := fs.ReadFile(migrationsFS, name)
		require.NoError(t, err)
		body := string(data)
		assert.True(t, strings.Contains(body, "-- +goose Up"), name)
		assert.True(t, strings.Contains(body, "-- +goose Down"), name)
	}
}

func TestDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "carro",
		Password: "secret",
		Name:     "journal",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgresql://carro:secret@db:5432/journal?sslmode=disable", DSN(cfg))
}
