// Package dbtest provides a shared test helper for creating a throwaway
// tokenstore backed by a temp-file sqlite database.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/acmdf/vrctv/internal/tokenstore"
)

// NewTestStore opens a temp-file sqlite tokenstore and registers cleanup.
func NewTestStore(t *testing.T) *tokenstore.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := tokenstore.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("dbtest: failed to open sqlite tokenstore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
