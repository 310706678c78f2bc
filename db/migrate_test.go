package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	statements []string
	failOn     string
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.failOn != "" && strings.Contains(sql, r.failOn) {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	r.statements = append(r.statements, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func TestApplyDirRunsSQLInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql":   {Data: []byte("SELECT 2")},
		"m/0001_a.sql":   {Data: []byte("SELECT 1")},
		"m/README.md":    {Data: []byte("docs")},
		"m/nested/x.sql": {Data: []byte("SELECT 99")},
	}
	exec := &recordingExecer{}
	require.NoError(t, ApplyDir(context.Background(), exec, fsys, "m"))
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, exec.statements)
}

func TestApplyDirStopsOnFailure(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/0002_b.sql": {Data: []byte("BROKEN")},
		"m/0003_c.sql": {Data: []byte("SELECT 3")},
	}
	exec := &recordingExecer{failOn: "BROKEN"}
	err := ApplyDir(context.Background(), exec, fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_b.sql")
	assert.Equal(t, []string{"SELECT 1"}, exec.statements)
}

func TestEmbeddedMigrationsCreateCoreTables(t *testing.T) {
	exec := &recordingExecer{}
	require.NoError(t, Migrate(context.Background(), exec))
	require.NotEmpty(t, exec.statements)

	all := strings.Join(exec.statements, "\n")
	for _, table := range []string{"users", "jobs", "applications", "offers", "agreements", "outbox"} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table)
	}
}
