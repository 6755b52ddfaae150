package manifest

import (
	"github.com/google/btree"
)

// Match lists the paths holding one piece of content in each manifest.
type Match struct {
	Hash  string   `json:"hash"`
	Left  []string `json:"left,omitempty"`
	Right []string `json:"right,omitempty"`
}

// Comparison is the cross-reference of two manifests. Every list is ordered
// by hash.
type Comparison struct {
	Common    []Match  `json:"common"`     // content present in both
	OnlyLeft  []Match  `json:"only_left"`  // content missing from the right
	OnlyRight []Match  `json:"only_right"` // content missing from the left
	Unhashed  []string `json:"unhashed"`   // rows with a sentinel hash, left then right
}

func matchLess(a, b Match) bool {
	return a.Hash < b.Hash
}

// Compare cross-references two manifests by content hash. Rows without a
// digest never match anything and are reported in Unhashed.
func Compare(left, right []Row) Comparison {
	var cmp Comparison
	index := btree.NewG[Match](32, matchLess)

	add := func(r Row, isRight bool) {
		if !r.HasDigest() {
			cmp.Unhashed = append(cmp.Unhashed, r.Path())
			return
		}
		m, _ := index.Get(Match{Hash: r.Hash})
		m.Hash = r.Hash
		if isRight {
			m.Right = append(m.Right, r.Path())
		} else {
			m.Left = append(m.Left, r.Path())
		}
		index.ReplaceOrInsert(m)
	}
	for _, r := range left {
		add(r, false)
	}
	for _, r := range right {
		add(r, true)
	}

	index.Ascend(func(m Match) bool {
		switch {
		case len(m.Left) > 0 && len(m.Right) > 0:
			cmp.Common = append(cmp.Common, m)
		case len(m.Left) > 0:
			cmp.OnlyLeft = append(cmp.OnlyLeft, m)
		default:
			cmp.OnlyRight = append(cmp.OnlyRight, m)
		}
		return true
	})
	return cmp
}
