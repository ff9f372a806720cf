// Package highlight maps synthesizer progress onto discrete visual units.
package highlight

import (
	"sort"

	"github.com/clarityread/readaloud/tts/chunk"
)

// Unit is one word-like span of the text: the word plus its trailing
// whitespace.
type Unit struct {
	Content string
}

// Len returns the unit length in runes.
func (u Unit) Len() int {
	return chunk.Runes(u.Content)
}

// Index is a cumulative-length table over an ordered sequence of units.
type Index struct {
	cumulative []int
}

// Build creates an index over units.
func Build(units []Unit) *Index {
	cumulative := make([]int, len(units))
	total := 0
	for i, u := range units {
		total += u.Len()
		cumulative[i] = total
	}
	return &Index{cumulative: cumulative}
}

// Len returns the number of indexed units.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.cumulative)
}

// Total returns the combined length of all units in runes.
func (x *Index) Total() int {
	if x.Len() == 0 {
		return 0
	}
	return x.cumulative[len(x.cumulative)-1]
}

// Start returns the rune offset at which unit pos begins.
func (x *Index) Start(pos int) int {
	if pos <= 0 || x.Len() == 0 {
		return 0
	}
	if pos >= x.Len() {
		return x.Total()
	}
	return x.cumulative[pos-1]
}

// Map returns the position of the unit containing offset. An offset that
// falls exactly on a boundary belongs to the unit starting there. Offsets
// past the end map to the last unit and an empty index returns -1.
func (x *Index) Map(offset int) int {
	n := x.Len()
	if n == 0 {
		return -1
	}
	if offset < 0 {
		return 0
	}

	pos := sort.Search(n, func(i int) bool {
		return x.cumulative[i] > offset
	})
	if pos >= n {
		return n - 1
	}
	return pos
}
