package scan

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cespare/xxhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestHasher_Algorithms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	writeFile(t, path, "hello")

	b3 := blake3.Sum256([]byte("hello"))
	xx := xxhash.New()
	xx.Write([]byte("hello"))

	tests := []struct {
		algorithm string
		want      string
	}{
		{"", "5d41402abc4b2a76b9719d911017c592"},
		{"md5", "5d41402abc4b2a76b9719d911017c592"},
		{"SHA256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"blake3", hex.EncodeToString(b3[:])},
		{"xxhash", hex.EncodeToString(xx.Sum(nil))},
	}
	for _, tc := range tests {
		t.Run(tc.algorithm, func(t *testing.T) {
			h, err := NewHasher(tc.algorithm, DefaultSizeThreshold)
			require.NoError(t, err)

			fp, size, err := h.Hash(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, Hashed, fp.Status)
			assert.Equal(t, tc.want, fp.Digest)
			assert.Equal(t, int64(5), size)
		})
	}
}

func TestHasher_UnknownAlgorithm(t *testing.T) {
	_, err := NewHasher("crc7", DefaultSizeThreshold)
	require.ErrorIs(t, err, ErrBadAlgorithm)
	assert.Contains(t, err.Error(), "md5")
}

func TestHasher_SkipsAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	atLimit := filepath.Join(dir, "at.bin")
	overLimit := filepath.Join(dir, "over.bin")
	writeFile(t, atLimit, "0123456789")
	writeFile(t, overLimit, "0123456789a")

	h, err := NewHasher("md5", 10)
	require.NoError(t, err)

	fp, _, err := h.Hash(context.Background(), atLimit)
	require.NoError(t, err)
	assert.Equal(t, Hashed, fp.Status)

	fp, size, err := h.Hash(context.Background(), overLimit)
	require.NoError(t, err)
	assert.Equal(t, Skipped, fp.Status)
	assert.Empty(t, fp.Digest)
	assert.Equal(t, int64(11), size)
}

func TestHasher_SkipDoesNotReadContent(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	path := filepath.Join(t.TempDir(), "locked.bin")
	writeFile(t, path, strings.Repeat("x", 100))
	require.NoError(t, os.Chmod(path, 0))

	h, err := NewHasher("md5", 10)
	require.NoError(t, err)
	fp, _, err := h.Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Skipped, fp.Status)
}

func TestHasher_ZeroThresholdHashesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	writeFile(t, path, strings.Repeat("x", 4096))

	h, err := NewHasher("md5", 0)
	require.NoError(t, err)
	fp, _, err := h.Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Hashed, fp.Status)
}

func TestHasher_MissingFile(t *testing.T) {
	h, err := NewHasher("md5", DefaultSizeThreshold)
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "gone.txt")
	fp, _, err := h.Hash(context.Background(), missing)
	require.Error(t, err)
	assert.Equal(t, Failed, fp.Status)
	assert.ErrorIs(t, err, ErrHashFailure)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var hashErr *HashError
	require.ErrorAs(t, err, &hashErr)
	assert.Equal(t, missing, hashErr.Path)
}

func TestHasher_MMapMatchesStreaming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	writeFile(t, path, strings.Repeat("dupfind", 50000))

	streaming, err := NewHasher("sha256", DefaultSizeThreshold)
	require.NoError(t, err)
	mapped, err := NewHasher("sha256", DefaultSizeThreshold)
	require.NoError(t, err)
	mapped.WithMMap(1024)

	want, _, err := streaming.Hash(context.Background(), path)
	require.NoError(t, err)
	got, _, err := mapped.Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHasher_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	writeFile(t, path, "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := NewHasher("md5", DefaultSizeThreshold)
	require.NoError(t, err)
	_, _, err = h.Hash(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}
