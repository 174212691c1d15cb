// Package repotest opens throwaway SQLite stores for package tests.
package repotest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tradedocs/internal/repository"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore returns a migrated in-memory store that is closed with the test.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()
	logger := Logger()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	c, err := repository.OpenSQLite(context.Background(), dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(c, logger) })
	require.NoError(t, repository.Migrate(c, logger))
	return repository.NewStore(c, logger)
}
