package debris

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPathNoCollisionUsesBareDate(t *testing.T) {
	when := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	got, err := Path("/sync", when, func(string) bool { return false })
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join("/sync", ".debris", "2026-03-05")
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestPathCollisionAppendsTimeSuffix(t *testing.T) {
	when := time.Date(2026, 3, 5, 10, 30, 15, 0, time.UTC)
	base := filepath.Join("/sync", ".debris", "2026-03-05")
	calls := 0
	got, err := Path("/sync", when, func(p string) bool {
		calls++
		return p == base // only the bare date collides
	})
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := base + " 10.30.15.00"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestPathGivesUpAfterMaxAttempts(t *testing.T) {
	when := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	_, err := Path("/sync", when, func(string) bool { return true })
	if err == nil {
		t.Fatalf("expected an error when every candidate collides")
	}
}
