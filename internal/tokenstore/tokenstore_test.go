package tokenstore_test

import (
	"context"
	"testing"

	"github.com/acmdf/vrctv/internal/tokenstore"
	"github.com/acmdf/vrctv/internal/tokenstore/dbtest"
)

func TestUpsertTwitchKey_InsertThenBumpVersion(t *testing.T) {
	ctx := context.Background()
	store := dbtest.NewTestStore(t)

	if err := store.InsertOrIgnoreActiveKey(ctx, "abc"); err != nil {
		t.Fatalf("insert active key: %v", err)
	}
	if err := store.InsertOrIgnoreTwitchUser(ctx, 42); err != nil {
		t.Fatalf("insert twitch user: %v", err)
	}

	if err := store.UpsertTwitchKey(ctx, 42, "access-1", "refresh-1", "abc"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	pk, err := store.GetTwitchKeyByState(ctx, "abc")
	if err != nil {
		t.Fatalf("get by state: %v", err)
	}
	if pk == nil {
		t.Fatal("expected a provider key row, got nil")
	}
	if pk.Version != 1 {
		t.Fatalf("expected version 1 on first insert, got %d", pk.Version)
	}
	if pk.Authentication != "access-1" {
		t.Fatalf("expected access-1, got %q", pk.Authentication)
	}

	if err := store.UpsertTwitchKey(ctx, 42, "access-2", "refresh-2", "abc"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	pk, err = store.GetTwitchKeyByState(ctx, "abc")
	if err != nil {
		t.Fatalf("get by state after update: %v", err)
	}
	if pk.Version != 2 {
		t.Fatalf("expected version bumped to 2, got %d", pk.Version)
	}
	if pk.Authentication != "access-2" {
		t.Fatalf("expected updated access-2, got %q", pk.Authentication)
	}
}

func TestGetTwitchKeyByState_NotFound(t *testing.T) {
	store := dbtest.NewTestStore(t)

	pk, err := store.GetTwitchKeyByState(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("expected no error on missing row, got %v", err)
	}
	if pk != nil {
		t.Fatalf("expected nil for missing row, got %+v", pk)
	}
}
