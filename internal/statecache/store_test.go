package statecache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/syncrules/cloudsync/internal/domain"
)

func TestTableNameIsStableAndBase64(t *testing.T) {
	name := TableName(42, "handleH", "user1")
	if name == "" || name[:5] != "sync_" {
		t.Fatalf("unexpected table name: %s", name)
	}
	again := TableName(42, "handleH", "user1")
	if name != again {
		t.Fatalf("TableName should be deterministic: %s vs %s", name, again)
	}
	other := TableName(43, "handleH", "user1")
	if other == name {
		t.Fatalf("different root fsid should produce a different table name")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"), "sync_test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	id, err := s.Put(ctx, tx, Row{
		Localname:         "a.txt",
		Type:              domain.FileTypeRegular,
		Size:              10,
		Fsid:              domain.FSID(7),
		SyncedCloudHandle: domain.CloudHandle("H1"),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rows, err := s.Rewind(ctx)
	if err != nil {
		t.Fatalf("Rewind: %v", err)
	}
	defer rows.Close()

	var got Row
	found := false
	for rows.Next() {
		r, err := Next(rows)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if r.DbID == id {
			got = r
			found = true
		}
	}
	if !found {
		t.Fatalf("row %d not found after commit", id)
	}
	if got.Localname != "a.txt" || got.Fsid != domain.FSID(7) || got.SyncedCloudHandle != domain.CloudHandle("H1") {
		t.Fatalf("round-tripped row mismatch: %+v", got)
	}
}

func TestDelRemovesRow(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"), "sync_test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	id, _ := s.Put(ctx, tx, Row{Localname: "gone.txt", Type: domain.FileTypeRegular})
	tx.Commit()

	tx2, _ := s.Begin(ctx)
	if err := s.Del(ctx, tx2, id); err != nil {
		t.Fatalf("Del: %v", err)
	}
	tx2.Commit()

	rows, _ := s.Rewind(ctx)
	defer rows.Close()
	for rows.Next() {
		r, _ := Next(rows)
		if r.DbID == id {
			t.Fatalf("row %d should have been deleted", id)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"), "sync_test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.PutConfig(ctx, 1, []byte("payload-v1")); err != nil {
		t.Fatalf("PutConfig: %v", err)
	}
	got, err := s.GetConfig(ctx, 1)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if string(got) != "payload-v1" {
		t.Fatalf("got %q, want payload-v1", got)
	}

	if err := s.PutConfig(ctx, 1, []byte("payload-v2")); err != nil {
		t.Fatalf("PutConfig update: %v", err)
	}
	got, _ = s.GetConfig(ctx, 1)
	if string(got) != "payload-v2" {
		t.Fatalf("got %q, want payload-v2 after update", got)
	}
}
