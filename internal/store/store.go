// Package store keeps scan manifests in a DuckDB database so duplicates can
// be queried across runs with SQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"dupfind/internal/logging"
	"dupfind/internal/scan"
)

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id BIGINT PRIMARY KEY,
	root VARCHAR NOT NULL,
	algorithm VARCHAR NOT NULL,
	started_at TIMESTAMP NOT NULL,
	file_count BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	scan_id BIGINT NOT NULL,
	seq BIGINT NOT NULL,
	path VARCHAR NOT NULL,
	filename VARCHAR NOT NULL,
	checksum VARCHAR,
	status VARCHAR NOT NULL,
	file_size BIGINT NOT NULL,
	PRIMARY KEY (scan_id, path, filename)
);

CREATE INDEX IF NOT EXISTS idx_files_checksum ON files(checksum);
`

// ScanInfo describes one stored scan.
type ScanInfo struct {
	ID        int64     `json:"id"`
	Root      string    `json:"root"`
	Algorithm string    `json:"algorithm"`
	StartedAt time.Time `json:"started_at"`
	Files     int64     `json:"files"`
}

// Store is a DuckDB database of scans.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. An empty path opens an
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	logging.Debug("Database initialized: %q", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveScan stores every manifest entry of r under a new scan id and returns
// that id. Either the whole scan is stored or nothing is.
func (s *Store) SaveScan(ctx context.Context, r *scan.Result) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM scans").Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate scan id: %w", err)
	}

	startedAt := time.Now().Add(-r.Stats.Elapsed).UTC()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO scans (id, root, algorithm, started_at, file_count) VALUES (?, ?, ?, ?, ?)",
		id, r.Root, r.Algorithm, startedAt, int64(len(r.Manifest))); err != nil {
		return 0, fmt.Errorf("error inserting scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (scan_id, seq, path, filename, checksum, status, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range r.Manifest {
		var checksum sql.NullString
		if e.Fingerprint.IsHashed() {
			checksum = sql.NullString{String: e.Fingerprint.Digest, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, e.Seq, filepath.Dir(e.Path), filepath.Base(e.Path),
			checksum, e.Fingerprint.Status.String(), e.Size); err != nil {
			return 0, fmt.Errorf("error inserting file %s: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scan: %w", err)
	}
	logging.Info("Stored scan %d (%d files) in database", id, len(r.Manifest))
	return id, nil
}

// Scans lists stored scans, oldest first.
func (s *Store) Scans(ctx context.Context) ([]ScanInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, root, algorithm, started_at, file_count FROM scans ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("error listing scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanInfo
	for rows.Next() {
		var info ScanInfo
		if err := rows.Scan(&info.ID, &info.Root, &info.Algorithm, &info.StartedAt, &info.Files); err != nil {
			return nil, fmt.Errorf("error scanning scan row: %w", err)
		}
		scans = append(scans, info)
	}
	return scans, rows.Err()
}

// DuplicateGroups recomputes the duplicate groups of a stored scan. Groups
// are ordered by the discovery position of their first member and members
// by discovery order, matching scan.Result.Duplicates.
func (s *Store) DuplicateGroups(ctx context.Context, scanID int64) ([]scan.DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH dup AS (
			SELECT checksum, MIN(seq) AS first_seq
			FROM files
			WHERE scan_id = ? AND status = 'hashed'
			GROUP BY checksum
			HAVING COUNT(*) > 1
		)
		SELECT f.checksum, f.path, f.filename, f.file_size
		FROM files f JOIN dup d ON f.checksum = d.checksum
		WHERE f.scan_id = ? AND f.status = 'hashed'
		ORDER BY d.first_seq, f.seq
	`, scanID, scanID)
	if err != nil {
		return nil, fmt.Errorf("error querying duplicates: %w", err)
	}
	defer rows.Close()

	var groups []scan.DuplicateGroup
	for rows.Next() {
		var checksum, dir, name string
		var size int64
		if err := rows.Scan(&checksum, &dir, &name, &size); err != nil {
			return nil, fmt.Errorf("error scanning duplicate row: %w", err)
		}
		if n := len(groups); n == 0 || groups[n-1].Hash != checksum {
			groups = append(groups, scan.DuplicateGroup{Hash: checksum, Size: size})
		}
		g := &groups[len(groups)-1]
		g.Files = append(g.Files, filepath.Join(dir, name))
		g.Count++
	}
	return groups, rows.Err()
}
