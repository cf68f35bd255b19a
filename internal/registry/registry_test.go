package registry_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/acmdf/vrctv/internal/registry"
	"github.com/acmdf/vrctv/internal/streamlabs"
	"github.com/acmdf/vrctv/internal/twitch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSessions() (*twitch.Session, *streamlabs.Connection) {
	return nil, nil
}

func TestJoinCreatesEntryOnlyOnce(t *testing.T) {
	reg := registry.New(testLogger())
	ctx := registry.NewClientContext("127.0.0.1")
	calls := 0
	makeSessions := func() (*twitch.Session, *streamlabs.Connection) {
		calls++
		return noSessions()
	}

	entry1, sender1, created1 := reg.Join("abc", ctx, makeSessions)
	entry2, sender2, created2 := reg.Join("abc", ctx, makeSessions)

	if !created1 {
		t.Fatal("expected first join to create the entry")
	}
	if created2 {
		t.Fatal("expected second join to reuse the entry")
	}
	if entry1 != entry2 {
		t.Fatal("expected siblings to share one entry")
	}
	if sender1 == sender2 {
		t.Fatal("expected distinct fanout senders per sibling")
	}
	if calls != 1 {
		t.Fatalf("expected upstream sessions constructed once, got %d calls", calls)
	}
	if entry1.SenderCount() != 2 {
		t.Fatalf("expected 2 live senders, got %d", entry1.SenderCount())
	}
}

func TestLeaveRemovesEntryWhenEmpty(t *testing.T) {
	reg := registry.New(testLogger())
	ctx := registry.NewClientContext("127.0.0.1")

	entry, sender1, _ := reg.Join("abc", ctx, noSessions)
	_, sender2, _ := reg.Join("abc", ctx, noSessions)

	if empty := reg.Leave("abc", entry, sender1); empty {
		t.Fatal("expected entry to survive while a sibling remains")
	}
	if _, ok := reg.Lookup("abc"); !ok {
		t.Fatal("expected entry to still be registered")
	}

	if empty := reg.Leave("abc", entry, sender2); !empty {
		t.Fatal("expected entry to be empty after last sibling leaves")
	}
	if _, ok := reg.Lookup("abc"); ok {
		t.Fatal("expected entry to be removed from the registry")
	}
}

func TestBroadcastReachesAllSiblings(t *testing.T) {
	reg := registry.New(testLogger())
	ctx := registry.NewClientContext("127.0.0.1")

	entry, sender1, _ := reg.Join("abc", ctx, noSessions)
	_, sender2, _ := reg.Join("abc", ctx, noSessions)

	entry.Broadcast([]byte("hello"))

	if msg := <-sender1.C(); string(msg) != "hello" {
		t.Fatalf("unexpected message for sender1: %q", msg)
	}
	if msg := <-sender2.C(); string(msg) != "hello" {
		t.Fatalf("unexpected message for sender2: %q", msg)
	}
}

func TestSendReportsBackpressure(t *testing.T) {
	reg := registry.New(testLogger())
	ctx := registry.NewClientContext("127.0.0.1")
	entry, sender, _ := reg.Join("abc", ctx, noSessions)

	for i := 0; i < 32; i++ {
		if !sender.Send([]byte("x")) {
			t.Fatalf("expected send %d to succeed", i)
		}
	}

	failed := entry.Broadcast([]byte("overflow"))
	if len(failed) != 1 || failed[0] != sender {
		t.Fatal("expected the full sender to be reported as failed")
	}
}
