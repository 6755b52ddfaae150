package scan

import (
	"errors"
	"fmt"
	"time"

	"dupfind/internal/progress"
)

var (
	ErrInvalidRoot  = errors.New("invalid scan root")
	ErrHashFailure  = errors.New("hash failure")
	ErrCancelled    = errors.New("scan cancelled")
	ErrBadAlgorithm = errors.New("unsupported hash algorithm")
)

// DefaultSizeThreshold is the size above which files are skipped rather than hashed.
const DefaultSizeThreshold int64 = 100 * 1024 * 1024

// Status says how a file's fingerprint was obtained.
type Status int

const (
	Hashed Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Hashed:
		return "hashed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Fingerprint identifies file content. Only Hashed fingerprints carry a
// digest and only they take part in duplicate detection.
type Fingerprint struct {
	Status Status
	Digest string // lowercase hex, empty unless Status == Hashed
}

func (f Fingerprint) IsHashed() bool {
	return f.Status == Hashed
}

// FileEntry is a regular file discovered during a scan.
type FileEntry struct {
	Seq         int64 // discovery order
	Path        string
	Size        int64
	Fingerprint Fingerprint
}

// DuplicateGroup is a set of files sharing one digest, in discovery order.
type DuplicateGroup struct {
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
	Count int      `json:"count"`
	Size  int64    `json:"size"` // size of one member
}

// FailureKind classifies a recoverable scan failure.
type FailureKind int

const (
	HashFailure FailureKind = iota
	TraversalPermissionDenied
	TraversalError
)

func (k FailureKind) String() string {
	switch k {
	case HashFailure:
		return "HashFailure"
	case TraversalPermissionDenied:
		return "TraversalPermissionDenied"
	case TraversalError:
		return "TraversalError"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Failure records a file or subtree that was left out of the scan.
type Failure struct {
	Path string
	Kind FailureKind
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// HashError is returned by Hasher when a file cannot be read.
type HashError struct {
	Path string
	Err  error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("hash %s: %v", e.Path, e.Err)
}

func (e *HashError) Unwrap() []error {
	return []error{ErrHashFailure, e.Err}
}

// Result is the outcome of one complete scan.
type Result struct {
	Root       string
	Algorithm  string
	Manifest   []FileEntry // sorted by Path
	Duplicates []DuplicateGroup
	Failures   []Failure
	Stats      Summary
}

// Options configures a scan. Root is required. SizeThreshold is taken
// literally, so the zero value hashes every file; pass DefaultSizeThreshold
// for the standard 100 MiB limit. Every other zero value has a usable default.
type Options struct {
	Root          string
	Algorithm     string // md5 if empty
	SizeThreshold int64  // files larger than this are skipped; <= 0 hashes everything
	Workers       int    // <= 1 scans sequentially
	BufferSize    int    // channel buffer for concurrent mode

	UseMMap     bool  // memory-map files of at least MinMMapSize bytes
	MinMMapSize int64 // defaults to 4MiB

	AbsolutePaths bool     // resolve Root to an absolute path before walking
	ExcludeHidden bool     // skip dot files and dot directories
	ExcludeDirs   []string // directory base names to prune
	Patterns      []string // shell globs on the base name; empty means all files

	Progress progress.SpinnerProgressTracker
}

// Summary holds the counters reported alongside a result.
type Summary struct {
	Files      int64
	Hashed     int64
	Skipped    int64
	Failed     int64
	Bytes      int64
	HashedByte int64
	Duplicates int64 // files that have at least one twin
	Wasted     int64 // bytes that could be reclaimed by keeping one copy per group
	Elapsed    time.Duration
}
