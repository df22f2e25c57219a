package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	b, err := fs.ReadFile(Migrations, "00001_init.sql")
	require.NoError(t, err)
	sql := string(b)

	assert.Contains(t, sql, "-- +goose Up")
	assert.Contains(t, sql, "-- +goose Down")
	assert.Contains(t, sql, "UNIQUE (secret_id, grantee_address)")
	assert.Equal(t, 3, strings.Count(sql, "REFERENCES secrets (id) ON DELETE CASCADE"))
}
