package scan

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/edsrzf/mmap-go"
	sha256 "github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
)

const (
	DefaultAlgorithm   = "md5"
	defaultMinMMapSize = 4 * 1024 * 1024
)

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha256": sha256.New,
	"blake3": func() hash.Hash { return blake3.New() },
	"xxhash": func() hash.Hash { return xxhash.New() },
}

// Algorithms lists the supported digest names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hasher fingerprints files by content.
type Hasher struct {
	algorithm   string
	newHash     func() hash.Hash
	threshold   int64
	useMMap     bool
	minMMapSize int64
}

// NewHasher returns a Hasher for the named algorithm (case-insensitive).
func NewHasher(algorithm string, threshold int64) (*Hasher, error) {
	name := strings.ToLower(strings.TrimSpace(algorithm))
	if name == "" {
		name = DefaultAlgorithm
	}
	newHash, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrBadAlgorithm, algorithm, strings.Join(Algorithms(), ", "))
	}
	return &Hasher{
		algorithm:   name,
		newHash:     newHash,
		threshold:   threshold,
		minMMapSize: defaultMinMMapSize,
	}, nil
}

// WithMMap enables memory mapping for files of at least minSize bytes.
func (h *Hasher) WithMMap(minSize int64) *Hasher {
	h.useMMap = true
	if minSize > 0 {
		h.minMMapSize = minSize
	}
	return h
}

func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Hash fingerprints the file at path. Files above the size threshold are
// reported as Skipped without being opened. Read failures return a *HashError.
// The returned size is the size observed before reading.
func (h *Hasher) Hash(ctx context.Context, path string) (Fingerprint, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{Status: Failed}, 0, &HashError{Path: path, Err: err}
	}
	size := info.Size()
	if h.threshold > 0 && size > h.threshold {
		logDebug("Skipping large file: %s (size: %d bytes)", path, size)
		return Fingerprint{Status: Skipped}, size, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{Status: Failed}, size, &HashError{Path: path, Err: err}
	}
	defer f.Close()

	digest := h.newHash()
	if h.useMMap && size >= h.minMMapSize {
		err := hashByMMap(f, digest)
		if err == nil {
			return Fingerprint{Status: Hashed, Digest: hex.EncodeToString(digest.Sum(nil))}, size, nil
		}
		logDebug("mmap failed for %s, falling back to streaming: %v", path, err)
		digest.Reset()
	}

	if err := hashStream(ctx, f, digest); err != nil {
		return Fingerprint{Status: Failed}, size, &HashError{Path: path, Err: err}
	}
	return Fingerprint{Status: Hashed, Digest: hex.EncodeToString(digest.Sum(nil))}, size, nil
}

// hashStream copies r into digest in pooled chunks, checking ctx between reads.
func hashStream(ctx context.Context, r io.Reader, digest hash.Hash) error {
	bufp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufp)
	buf := *bufp

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func hashByMMap(f *os.File, digest hash.Hash) error {
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	defer data.Unmap()
	digest.Write(data)
	return nil
}
