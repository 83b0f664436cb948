// Package statecache persists the Sync Tree across restarts so that
// reconciliation resumes from the last reconciled view instead of a
// cold scan. It wraps database/sql + go-sqlite3 the same way
// internal/state.Manager wraps sqlite for execution history: WAL
// mode, a bounded connection pool, one table per sync plus a
// process-wide configuration table.
package statecache

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/syncrules/cloudsync/internal/domain"
)

// Row is one serialised SyncNode's persisted field list.
type Row struct {
	DbID              int64
	ParentDbID        int64
	Localname         string
	Shortname         string
	Type              domain.FileType
	Size              int64
	ModTimeUnixNano   int64
	Fsid              domain.FSID
	SyncedCloudHandle domain.CloudHandle
	FingerprintCRC    uint32
}

// TableName derives the per-sync table name from the root filesystem
// id, root cloud handle, and user id, base64-encoded so it is a safe
// SQL identifier.
func TableName(rootFsid uint64, rootCloudHandle, userID string) string {
	buf := make([]byte, 8+len(rootCloudHandle)+len(userID))
	binary.BigEndian.PutUint64(buf, rootFsid)
	copy(buf[8:], rootCloudHandle)
	copy(buf[8+len(rootCloudHandle):], userID)
	enc := base64.RawURLEncoding.EncodeToString(buf)
	return "sync_" + enc
}

// Store is the state-cache handle for one sync: a dedicated table in a
// shared sqlite database, plus the Begin/Commit machinery the
// reconciler's per-directory-pass committer uses to batch writes.
type Store struct {
	db        *sql.DB
	table     string
	ownsDB    bool
}

// configTable is the process-wide table storing per-sync configuration
// keyed by a stable integer tag.
const configTable = "sync_configs"

// Open opens (creating if necessary) the sqlite database at dbPath and
// the table named name, matching internal/state.Manager's WAL/busy-
// timeout setup.
func Open(dbPath, name string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("statecache: creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statecache: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statecache: enabling WAL mode: %w", err)
	}

	s := &Store{db: db, table: name, ownsDB: true}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenShared opens a Store against an already-open *sql.DB, for callers
// that want several sessions' tables to live in one database file.
func OpenShared(db *sql.DB, name string) (*Store, error) {
	s := &Store{db: db, table: name}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %q (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_db_id INTEGER NOT NULL DEFAULT 0,
		localname TEXT NOT NULL,
		shortname TEXT NOT NULL DEFAULT '',
		type INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mtime_unix_nano INTEGER NOT NULL DEFAULT 0,
		fsid INTEGER NOT NULL DEFAULT 0,
		synced_cloud_handle TEXT NOT NULL DEFAULT '',
		fingerprint_crc INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS %q ON %q(parent_db_id);

	CREATE TABLE IF NOT EXISTS %s (
		tag INTEGER PRIMARY KEY,
		payload BLOB NOT NULL
	);
	`, s.table, s.table+"_parent_idx", s.table, configTable)

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("statecache: initializing schema: %w", err)
	}
	return nil
}

// Rewind returns a cursor over every row in this sync's table, ordered
// by id, for bulk tree reconstruction: all rows read into a temporary
// parentDbId→node multimap before the tree is rebuilt top-down.
func (s *Store) Rewind(ctx context.Context) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, parent_db_id, localname, shortname, type, size, mtime_unix_nano, fsid, synced_cloud_handle, fingerprint_crc FROM %q ORDER BY id`, s.table))
}

// Next scans one row from a cursor returned by Rewind.
func Next(rows *sql.Rows) (Row, error) {
	var r Row
	var typ int
	err := rows.Scan(&r.DbID, &r.ParentDbID, &r.Localname, &r.Shortname, &typ, &r.Size, &r.ModTimeUnixNano, &r.Fsid, &r.SyncedCloudHandle, &r.FingerprintCRC)
	r.Type = domain.FileType(typ)
	return r, err
}

// Put inserts or updates one row inside tx. Rows whose ParentDbID
// refers to a not-yet-written parent should be deferred by the caller;
// Put itself has no opinion about ordering.
func (s *Store) Put(ctx context.Context, tx *sql.Tx, r Row) (int64, error) {
	if r.DbID == 0 {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %q (parent_db_id, localname, shortname, type, size, mtime_unix_nano, fsid, synced_cloud_handle, fingerprint_crc) VALUES (?,?,?,?,?,?,?,?,?)`, s.table),
			r.ParentDbID, r.Localname, r.Shortname, int(r.Type), r.Size, r.ModTimeUnixNano, uint64(r.Fsid), string(r.SyncedCloudHandle), r.FingerprintCRC)
		if err != nil {
			return 0, fmt.Errorf("statecache: insert: %w", err)
		}
		return res.LastInsertId()
	}
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET parent_db_id=?, localname=?, shortname=?, type=?, size=?, mtime_unix_nano=?, fsid=?, synced_cloud_handle=?, fingerprint_crc=? WHERE id=?`, s.table),
		r.ParentDbID, r.Localname, r.Shortname, int(r.Type), r.Size, r.ModTimeUnixNano, uint64(r.Fsid), string(r.SyncedCloudHandle), r.FingerprintCRC, r.DbID)
	if err != nil {
		return 0, fmt.Errorf("statecache: update: %w", err)
	}
	return r.DbID, nil
}

// Del deletes the row with the given id inside tx.
func (s *Store) Del(ctx context.Context, tx *sql.Tx, dbID int64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id=?`, s.table), dbID)
	if err != nil {
		return fmt.Errorf("statecache: delete: %w", err)
	}
	return nil
}

// Begin starts a transaction for one flush pass.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Truncate empties this sync's table.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, s.table))
	return err
}

// Drop removes this sync's table entirely.
func (s *Store) Drop(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, s.table))
	return err
}

// PutConfig persists an opaque configuration payload under tag in the
// process-wide sync_configs table.
func (s *Store) PutConfig(ctx context.Context, tag int64, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (tag, payload) VALUES (?, ?) ON CONFLICT(tag) DO UPDATE SET payload=excluded.payload`, configTable),
		tag, payload)
	return err
}

// GetConfig retrieves the configuration payload for tag, or
// (nil, sql.ErrNoRows) if none exists.
func (s *Store) GetConfig(ctx context.Context, tag int64) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT payload FROM %s WHERE tag=?`, configTable), tag).Scan(&payload)
	return payload, err
}

// Close closes the underlying database connection if this Store owns
// it (i.e. it was created via Open rather than OpenShared).
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
