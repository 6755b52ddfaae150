package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupfind/internal/config"
	"dupfind/internal/manifest"
	"dupfind/internal/scan"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-file", filepath.Join(t.TempDir(), "test.log")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("unique"), 0644))
	return root
}

func TestScanCommand(t *testing.T) {
	root := makeTree(t)
	out := filepath.Join(t.TempDir(), "dups.csv")

	stdout, err := execute(t, "--no-progress", "-o", out, root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Sorted files:")
	assert.Contains(t, stdout, "Hash: 5d41402abc4b2a76b9719d911017c592")
	assert.Contains(t, stdout, "File list written to "+out)

	rows, err := manifest.ReadFile(out)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, filepath.Join(root, "a.txt"), rows[0].Path())

	// a second run refuses to clobber the manifest but still reports
	stdout, err = execute(t, "--no-progress", "-o", out, root)
	require.ErrorIs(t, err, manifest.ErrOutputExists)
	assert.Contains(t, stdout, "Sorted files:")

	_, err = execute(t, "--no-progress", "--append", "-o", out, root)
	require.NoError(t, err)
	rows, err = manifest.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestScanCommand_JSON(t *testing.T) {
	root := makeTree(t)
	out := filepath.Join(t.TempDir(), "dups.csv.zst")

	stdout, err := execute(t, "--no-progress", "-f", "json", "-w", "4", "-o", out, root)
	require.NoError(t, err)

	var got struct {
		Duplicates []scan.DuplicateGroup `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got.Duplicates, 1)
	assert.Equal(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "sub", "b.txt")}, got.Duplicates[0].Files)
}

func TestScanCommand_Errors(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dups.csv")

	_, err := execute(t, "--no-progress", "-o", out, filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, scan.ErrInvalidRoot)

	_, err = execute(t, "--no-progress", "-o", out)
	require.Error(t, err)

	_, err = execute(t, "--no-progress", "-a", "crc32", "-o", out, t.TempDir())
	require.ErrorIs(t, err, scan.ErrBadAlgorithm)

	_, err = execute(t, "--no-progress", "-m", "huge", "-o", out, t.TempDir())
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestScanCommand_ConfigFile(t *testing.T) {
	root := makeTree(t)
	out := filepath.Join(t.TempDir(), "from-config.csv")
	cfgPath := filepath.Join(t.TempDir(), "dupfind.ini")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"[scan]\nroot = "+root+"\nmax_size = 5\n\n[output]\nmanifest = "+out+"\nprogress = false\n"), 0644))

	_, err := execute(t, "-c", cfgPath)
	require.NoError(t, err)

	rows, err := manifest.ReadFile(out)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// c.txt is six bytes and over the configured limit
	assert.Equal(t, "c.txt", rows[1].Name)
	assert.Equal(t, manifest.SkippedHash, rows[1].Hash)

	// flags win over the file
	out2 := filepath.Join(t.TempDir(), "from-flags.csv")
	_, err = execute(t, "-c", cfgPath, "-m", "0", "-o", out2)
	require.NoError(t, err)
	rows, err = manifest.ReadFile(out2)
	require.NoError(t, err)
	assert.True(t, rows[1].HasDigest())
}

func TestScanCommand_Database(t *testing.T) {
	root := makeTree(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "scans.duckdb")
	stdout, err := execute(t, "--no-progress", "-o", filepath.Join(dir, "dups.csv"), "--db", db, root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Scan stored in")

	stdout, err = execute(t, "db", "scans", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "   1  ")
	assert.Contains(t, stdout, root)

	stdout, err = execute(t, "db", "duplicates", "1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Hash: 5d41402abc4b2a76b9719d911017c592")
	assert.Contains(t, stdout, " - "+filepath.Join(root, "a.txt")+"\n - "+filepath.Join(root, "sub", "b.txt")+"\n")

	stdout, err = execute(t, "db", "duplicates", "1", "--db", db, "--format", "JSON")
	require.NoError(t, err)
	var groups []scan.DuplicateGroup
	require.NoError(t, json.Unmarshal([]byte(stdout), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)

	stdout, err = execute(t, "db", "duplicates", "99", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No duplicate files found.")
}

func TestDBCommand_Errors(t *testing.T) {
	_, err := execute(t, "db", "scans")
	require.ErrorContains(t, err, "no database")

	_, err = execute(t, "db", "scans", "--db", filepath.Join(t.TempDir(), "missing.duckdb"))
	require.ErrorContains(t, err, "does not exist")

	_, err = execute(t, "db", "duplicates", "first", "--db", "x.duckdb")
	require.ErrorContains(t, err, "invalid scan id")
}

func TestCompareCommand(t *testing.T) {
	root := makeTree(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")

	_, err := execute(t, "--no-progress", "-o", first, root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("brand new"), 0644))
	_, err = execute(t, "--no-progress", "-o", second, root)
	require.NoError(t, err)

	stdout, err := execute(t, "compare", first, second)
	require.NoError(t, err)
	assert.Contains(t, stdout, "In both (2):")
	assert.Contains(t, stdout, "Only in first (0):")
	assert.Contains(t, stdout, "Only in second (1):")
	assert.Contains(t, stdout, " > "+filepath.Join(root, "new.txt"))

	// format names are case-insensitive, as for a scan
	stdout, err = execute(t, "compare", "--format", "JSON", first, second)
	require.NoError(t, err)
	var cmp manifest.Comparison
	require.NoError(t, json.Unmarshal([]byte(stdout), &cmp))
	assert.Len(t, cmp.Common, 2)
	assert.Len(t, cmp.OnlyRight, 1)

	_, err = execute(t, "compare", "--format", "xml", first, second)
	require.Error(t, err)
}

func TestVersionAndConfigCommands(t *testing.T) {
	stdout, err := execute(t, "-v")
	require.NoError(t, err)
	assert.Contains(t, stdout, "dupfind v"+scan.Version)

	stdout, err = execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[scan]")
	assert.Contains(t, stdout, "max_size")
}

func TestConfigCommand_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupfind.ini")

	stdout, err := execute(t, "config", "--save", path, "--db", "scans.duckdb", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Config written to "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scans.duckdb", cfg.Database)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = execute(t, "config", "--save", path)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "--save", path, "--force", "--format", "json")
	require.NoError(t, err)
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format)
	assert.Empty(t, cfg.Database)

	// the saved file feeds a later run
	stdout, err = execute(t, "-c", path, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "format")
	assert.Contains(t, stdout, "json")
}
