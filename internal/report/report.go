// Package report renders scan results and manifest comparisons for the
// console.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"dupfind/internal/manifest"
	"dupfind/internal/scan"
	"dupfind/internal/store"
)

const (
	FormatHuman = "human"
	FormatJSON  = "json"
)

// Render writes r to w in the named format.
func Render(w io.Writer, format string, r *scan.Result) error {
	switch format {
	case FormatHuman, "":
		return Human(w, r)
	case FormatJSON:
		return JSON(w, r)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// RenderComparison writes cmp to w in the named format.
func RenderComparison(w io.Writer, format string, cmp manifest.Comparison) error {
	switch format {
	case FormatHuman, "":
		return HumanComparison(w, cmp)
	case FormatJSON:
		return writeJSON(w, cmp)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// Human writes the sorted file list, the duplicate groups, a summary line and
// every recoverable failure.
func Human(w io.Writer, r *scan.Result) error {
	var buf bytes.Buffer

	buf.WriteString("Sorted files:\n")
	for _, e := range r.Manifest {
		fmt.Fprintf(&buf, "  %s\n", e.Path)
	}
	buf.WriteString("\n")

	writeGroups(&buf, r.Duplicates)

	fmt.Fprintf(&buf, "\nSummary: %s\n", r.Stats)
	if r.Stats.Skipped > 0 {
		fmt.Fprintf(&buf, "%d files were larger than the size limit and were not compared\n", r.Stats.Skipped)
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(&buf, "\nFailures (%d):\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&buf, "  %s: %s: %v\n", f.Kind, f.Path, f.Err)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeGroups(buf *bytes.Buffer, groups []scan.DuplicateGroup) {
	if len(groups) == 0 {
		buf.WriteString("No duplicate files found.\n")
		return
	}
	buf.WriteString("Duplicate files found:\n")
	for _, g := range groups {
		fmt.Fprintf(buf, "Hash: %s (%d files, %s each)\n", g.Hash, g.Count, humanize.IBytes(uint64(g.Size)))
		for _, p := range g.Files {
			fmt.Fprintf(buf, " - %s\n", p)
		}
	}
}

// RenderGroups writes duplicate groups read back from a database.
func RenderGroups(w io.Writer, format string, groups []scan.DuplicateGroup) error {
	switch format {
	case FormatHuman, "":
		var buf bytes.Buffer
		writeGroups(&buf, groups)
		_, err := w.Write(buf.Bytes())
		return err
	case FormatJSON:
		if groups == nil {
			groups = []scan.DuplicateGroup{}
		}
		return writeJSON(w, groups)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// RenderScans lists stored scans, one per line.
func RenderScans(w io.Writer, format string, scans []store.ScanInfo) error {
	switch format {
	case FormatHuman, "":
		var buf bytes.Buffer
		if len(scans) == 0 {
			buf.WriteString("No scans stored.\n")
		}
		for _, info := range scans {
			fmt.Fprintf(&buf, "%4d  %s  %-7s %6d files  %s\n",
				info.ID, info.StartedAt.Local().Format("2006-01-02 15:04:05"), info.Algorithm, info.Files, info.Root)
		}
		_, err := w.Write(buf.Bytes())
		return err
	case FormatJSON:
		if scans == nil {
			scans = []store.ScanInfo{}
		}
		return writeJSON(w, scans)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// HumanComparison lists content found in both manifests, then content found
// in only one of them, then rows that could not be compared.
func HumanComparison(w io.Writer, cmp manifest.Comparison) error {
	var buf bytes.Buffer

	section := func(title string, matches []manifest.Match) {
		fmt.Fprintf(&buf, "%s (%d):\n", title, len(matches))
		for _, m := range matches {
			fmt.Fprintf(&buf, "Hash: %s\n", m.Hash)
			for _, p := range m.Left {
				fmt.Fprintf(&buf, " < %s\n", p)
			}
			for _, p := range m.Right {
				fmt.Fprintf(&buf, " > %s\n", p)
			}
		}
		buf.WriteString("\n")
	}
	section("In both", cmp.Common)
	section("Only in first", cmp.OnlyLeft)
	section("Only in second", cmp.OnlyRight)

	if len(cmp.Unhashed) > 0 {
		fmt.Fprintf(&buf, "Not compared (%d):\n", len(cmp.Unhashed))
		for _, p := range cmp.Unhashed {
			fmt.Fprintf(&buf, "  %s\n", p)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

type jsonFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
	Hash   string `json:"hash,omitempty"`
}

type jsonFailure struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type jsonSummary struct {
	Files       int64   `json:"files"`
	Hashed      int64   `json:"hashed"`
	Skipped     int64   `json:"skipped"`
	Failed      int64   `json:"failed"`
	Bytes       int64   `json:"bytes"`
	HashedBytes int64   `json:"hashed_bytes"`
	Duplicates  int64   `json:"duplicates"`
	Wasted      int64   `json:"wasted_bytes"`
	Elapsed     float64 `json:"elapsed_seconds"`
}

type jsonReport struct {
	Root       string                `json:"root"`
	Algorithm  string                `json:"algorithm"`
	Files      []jsonFile            `json:"files"`
	Duplicates []scan.DuplicateGroup `json:"duplicates"`
	Failures   []jsonFailure         `json:"failures"`
	Summary    jsonSummary           `json:"summary"`
}

// JSON writes r as a single indented JSON object.
func JSON(w io.Writer, r *scan.Result) error {
	out := jsonReport{
		Root:       r.Root,
		Algorithm:  r.Algorithm,
		Files:      make([]jsonFile, 0, len(r.Manifest)),
		Duplicates: r.Duplicates,
		Failures:   make([]jsonFailure, 0, len(r.Failures)),
		Summary: jsonSummary{
			Files:       r.Stats.Files,
			Hashed:      r.Stats.Hashed,
			Skipped:     r.Stats.Skipped,
			Failed:      r.Stats.Failed,
			Bytes:       r.Stats.Bytes,
			HashedBytes: r.Stats.HashedByte,
			Duplicates:  r.Stats.Duplicates,
			Wasted:      r.Stats.Wasted,
			Elapsed:     r.Stats.Elapsed.Seconds(),
		},
	}
	if out.Duplicates == nil {
		out.Duplicates = []scan.DuplicateGroup{}
	}
	for _, e := range r.Manifest {
		out.Files = append(out.Files, jsonFile{
			Path:   e.Path,
			Size:   e.Size,
			Status: e.Fingerprint.Status.String(),
			Hash:   e.Fingerprint.Digest,
		})
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, jsonFailure{
			Path:  f.Path,
			Kind:  f.Kind.String(),
			Error: fmt.Sprint(f.Err),
		})
	}
	return writeJSON(w, out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
