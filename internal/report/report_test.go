package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupfind/internal/manifest"
	"dupfind/internal/scan"
	"dupfind/internal/store"
)

func sampleResult() *scan.Result {
	return &scan.Result{
		Root:      "/data",
		Algorithm: "md5",
		Manifest: []scan.FileEntry{
			{Seq: 1, Path: "/data/a.txt", Size: 5, Fingerprint: scan.Fingerprint{Status: scan.Hashed, Digest: "5d41402abc4b2a76b9719d911017c592"}},
			{Seq: 3, Path: "/data/big.iso", Size: 200 << 20, Fingerprint: scan.Fingerprint{Status: scan.Skipped}},
			{Seq: 2, Path: "/data/sub/a-copy.txt", Size: 5, Fingerprint: scan.Fingerprint{Status: scan.Hashed, Digest: "5d41402abc4b2a76b9719d911017c592"}},
		},
		Duplicates: []scan.DuplicateGroup{{
			Hash:  "5d41402abc4b2a76b9719d911017c592",
			Files: []string{"/data/a.txt", "/data/sub/a-copy.txt"},
			Count: 2,
			Size:  5,
		}},
		Failures: []scan.Failure{{
			Path: "/data/locked",
			Kind: scan.TraversalPermissionDenied,
			Err:  errors.New("permission denied"),
		}},
		Stats: scan.Summary{Files: 3, Hashed: 2, Skipped: 1, Bytes: 10 + 200<<20, HashedByte: 10, Duplicates: 2, Wasted: 5, Elapsed: 1500 * time.Millisecond},
	}
}

func TestHuman(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Human(&buf, sampleResult()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Sorted files:\n  /data/a.txt\n  /data/big.iso\n  /data/sub/a-copy.txt\n"))
	assert.Contains(t, out, "Hash: 5d41402abc4b2a76b9719d911017c592")
	assert.Contains(t, out, " - /data/a.txt\n - /data/sub/a-copy.txt\n")
	assert.NotContains(t, out, "No duplicate files found.")
	assert.Contains(t, out, "Summary: 3 files")
	assert.Contains(t, out, "1 files were larger than the size limit")
	assert.Contains(t, out, "Failures (1):\n  TraversalPermissionDenied: /data/locked: permission denied\n")
}

func TestHuman_NoDuplicates(t *testing.T) {
	r := sampleResult()
	r.Duplicates = nil
	r.Failures = nil

	var buf bytes.Buffer
	require.NoError(t, Human(&buf, r))
	assert.Contains(t, buf.String(), "No duplicate files found.\n")
	assert.NotContains(t, buf.String(), "Failures")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, sampleResult()))

	var got jsonReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "/data", got.Root)
	require.Len(t, got.Files, 3)
	assert.Equal(t, "skipped", got.Files[1].Status)
	assert.Empty(t, got.Files[1].Hash)
	require.Len(t, got.Duplicates, 1)
	assert.Equal(t, 2, got.Duplicates[0].Count)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "TraversalPermissionDenied", got.Failures[0].Kind)
	assert.Equal(t, int64(5), got.Summary.Wasted)
	assert.InDelta(t, 1.5, got.Summary.Elapsed, 0.001)
}

func TestJSON_EmptyListsAreArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, &scan.Result{Root: "/empty"}))
	assert.Contains(t, buf.String(), `"duplicates": []`)
	assert.Contains(t, buf.String(), `"failures": []`)
	assert.Contains(t, buf.String(), `"files": []`)
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, Render(&buf, "xml", sampleResult()))
	require.Error(t, RenderComparison(&buf, "xml", manifest.Comparison{}))
}

func TestHumanComparison(t *testing.T) {
	cmp := manifest.Comparison{
		Common:    []manifest.Match{{Hash: "aa", Left: []string{"/old/a"}, Right: []string{"/new/a"}}},
		OnlyLeft:  []manifest.Match{{Hash: "cc", Left: []string{"/old/gone"}}},
		OnlyRight: nil,
		Unhashed:  []string{"/old/huge.iso"},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderComparison(&buf, FormatHuman, cmp))
	out := buf.String()
	assert.Contains(t, out, "In both (1):\nHash: aa\n < /old/a\n > /new/a\n")
	assert.Contains(t, out, "Only in first (1):\nHash: cc\n < /old/gone\n")
	assert.Contains(t, out, "Only in second (0):\n")
	assert.Contains(t, out, "Not compared (1):\n  /old/huge.iso\n")
}

func TestRenderGroups(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderGroups(&buf, FormatHuman, sampleResult().Duplicates))
	assert.Equal(t, "Duplicate files found:\nHash: 5d41402abc4b2a76b9719d911017c592 (2 files, 5 B each)\n - /data/a.txt\n - /data/sub/a-copy.txt\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderGroups(&buf, FormatHuman, nil))
	assert.Equal(t, "No duplicate files found.\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderGroups(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestRenderScans(t *testing.T) {
	scans := []store.ScanInfo{{ID: 7, Root: "/data", Algorithm: "md5", StartedAt: time.Now(), Files: 3}}

	var buf bytes.Buffer
	require.NoError(t, RenderScans(&buf, FormatHuman, scans))
	assert.Contains(t, buf.String(), "   7  ")
	assert.Contains(t, buf.String(), "3 files  /data\n")

	buf.Reset()
	require.NoError(t, RenderScans(&buf, FormatJSON, scans))
	var got []store.ScanInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)

	buf.Reset()
	require.NoError(t, RenderScans(&buf, FormatHuman, nil))
	assert.Equal(t, "No scans stored.\n", buf.String())
}
