package scan

import (
	"sort"
)

// outcome is what a hashing worker or the walker hands to the accumulator.
type outcome struct {
	entry   FileEntry
	failure *Failure
}

// accumulator owns the hash groups. It is only ever touched by one
// goroutine; concurrent producers go through a channel.
type accumulator struct {
	entries  []FileEntry
	groups   map[string][]int // digest -> indexes into entries
	order    []string         // digests in first-seen order
	failures []Failure
}

func newAccumulator() *accumulator {
	return &accumulator{
		groups: make(map[string][]int),
	}
}

func (a *accumulator) add(o outcome) {
	if o.failure != nil {
		a.failures = append(a.failures, *o.failure)
	}
	if o.entry.Path == "" {
		return
	}

	a.entries = append(a.entries, o.entry)
	fp := o.entry.Fingerprint
	// skipped and failed files were never compared, so they never form groups
	if !fp.IsHashed() {
		return
	}
	if _, ok := a.groups[fp.Digest]; !ok {
		a.order = append(a.order, fp.Digest)
	}
	a.groups[fp.Digest] = append(a.groups[fp.Digest], len(a.entries)-1)
}

// duplicates returns every group with two or more members. Members keep
// discovery order and groups are ordered by their first member.
func (a *accumulator) duplicates() []DuplicateGroup {
	var result []DuplicateGroup
	for _, digest := range a.order {
		idxs := a.groups[digest]
		if len(idxs) < 2 {
			continue
		}
		sort.Slice(idxs, func(i, j int) bool {
			return a.entries[idxs[i]].Seq < a.entries[idxs[j]].Seq
		})
		files := make([]string, len(idxs))
		for i, idx := range idxs {
			files[i] = a.entries[idx].Path
		}
		result = append(result, DuplicateGroup{
			Hash:  digest,
			Files: files,
			Count: len(files),
			Size:  a.entries[idxs[0]].Size,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return a.firstSeq(result[i].Hash) < a.firstSeq(result[j].Hash)
	})
	return result
}

func (a *accumulator) firstSeq(digest string) int64 {
	return a.entries[a.groups[digest][0]].Seq
}

// manifest returns all entries sorted by path.
func (a *accumulator) manifest() []FileEntry {
	out := make([]FileEntry, len(a.entries))
	copy(out, a.entries)
	SortManifest(out)
	return out
}

// SortManifest orders entries by full path, byte-wise.
func SortManifest(entries []FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}

func (a *accumulator) summarize(groups []DuplicateGroup) Summary {
	var s Summary
	for _, e := range a.entries {
		s.Files++
		s.Bytes += e.Size
		switch e.Fingerprint.Status {
		case Hashed:
			s.Hashed++
			s.HashedByte += e.Size
		case Skipped:
			s.Skipped++
		case Failed:
			s.Failed++
		}
	}
	for _, g := range groups {
		s.Duplicates += int64(g.Count)
		s.Wasted += int64(g.Count-1) * g.Size
	}
	return s
}

func (a *accumulator) sortedFailures() []Failure {
	sort.SliceStable(a.failures, func(i, j int) bool {
		return a.failures[i].Path < a.failures[j].Path
	})
	return a.failures
}
