// Package manifest serializes scan results as CSV rows of
// (directory, base name, hash) and cross-references manifests from
// different scans.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"dupfind/internal/scan"
)

// Hash column values for files that have no digest.
const (
	SkippedHash = "<skipped>"
	ErrorHash   = "<error>"
)

var (
	ErrOutputExists = errors.New("manifest already exists")
	ErrMalformed    = errors.New("malformed manifest")
)

// Header is the first record of every manifest.
var Header = []string{"File Path", "File Name", "File Hash"}

// Row is one manifest record.
type Row struct {
	Dir  string
	Name string
	Hash string
}

// Path joins the directory and name columns back together.
func (r Row) Path() string {
	return filepath.Join(r.Dir, r.Name)
}

// HasDigest reports whether the row carries a real content hash.
func (r Row) HasDigest() bool {
	return r.Hash != "" && r.Hash != SkippedHash && r.Hash != ErrorHash
}

// HashColumn renders a fingerprint for the hash column.
func HashColumn(fp scan.Fingerprint) string {
	switch fp.Status {
	case scan.Hashed:
		return fp.Digest
	case scan.Skipped:
		return SkippedHash
	default:
		return ErrorHash
	}
}

// FromEntries converts scan entries to rows, keeping their order.
func FromEntries(entries []scan.FileEntry) []Row {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{
			Dir:  filepath.Dir(e.Path),
			Name: filepath.Base(e.Path),
			Hash: HashColumn(e.Fingerprint),
		}
	}
	return rows
}

// Write emits rows as CSV, preceded by Header when header is true.
func Write(w io.Writer, rows []Row, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	record := make([]string, 3)
	for _, r := range rows {
		record[0], record[1], record[2] = r.Dir, r.Name, r.Hash
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", r.Path(), err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Read parses a manifest. Header records are skipped wherever they occur, so
// files built by appending several scans read back as one list. Manifests
// with CRLF line endings are accepted.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(crMasker{r})
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	var rows []Row
	record := make([]string, len(Header))
	for line := 1; ; line++ {
		raw, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		record[0] = unmaskCR(raw[0])
		record[1] = unmaskCR(raw[1])
		// the hash column never holds a CR; a trailing one is a line ending
		record[2] = strings.TrimRight(raw[2], "\x00")
		if isHeader(record) {
			continue
		}
		if line == 1 {
			return nil, fmt.Errorf("%w: missing header", ErrMalformed)
		}
		rows = append(rows, Row{Dir: record[0], Name: record[1], Hash: record[2]})
	}
}

// crMasker replaces every CR with NUL before encoding/csv sees it, since the
// csv reader folds CRLF inside quoted fields to LF. NUL cannot appear in a
// path, so unmaskCR restores the original bytes exactly.
type crMasker struct {
	r io.Reader
}

func (m crMasker) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	for i, b := range p[:n] {
		if b == '\r' {
			p[i] = 0
		}
	}
	return n, err
}

func unmaskCR(s string) string {
	return strings.ReplaceAll(s, "\x00", "\r")
}

func isHeader(record []string) bool {
	for i, h := range Header {
		if record[i] != h {
			return false
		}
	}
	return true
}
