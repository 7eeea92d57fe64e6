package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"autoanalyze-backend/internal/shared/storage/object"
)

func TestPutOpenRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	n, err := store.Put(ctx, "analyses/a1/results.json", "application/json", strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected 11 bytes written, got %d", n)
	}
	rc, err := store.Open(ctx, "analyses/a1/results.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestOpenMissingReturnsErrNotExist(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Open(context.Background(), "analyses/missing/results.json")
	if !errors.Is(err, object.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store := New(t.TempDir())
	for _, key := range []string{"../outside", "/etc/passwd", ""} {
		if _, err := store.Put(context.Background(), key, "text/plain", strings.NewReader("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}
