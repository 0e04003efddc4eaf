// Package result implements C4: a per-repo accumulator of (prefix, entry)
// result lines with deterministic stable sort and the two stdout print
// forms used by search and list mode.
package result

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Line is one (prefix, entry) result pair (§3 "Result line").
type Line struct {
	Prefix string
	Entry  string
}

// Accumulator is a single repo's result set. The zero value is not usable;
// construct with New. Safe for concurrent add calls from one repo's worker
// goroutine and its helpers.
type Accumulator struct {
	name string

	mu           sync.Mutex
	lines        []Line
	maxPrefixLen int
}

// New constructs an empty accumulator for the named repo.
func New(name string) *Accumulator {
	return &Accumulator{name: name}
}

// Name returns the repo name this accumulator was built for.
func (a *Accumulator) Name() string { return a.name }

// Add appends a (prefix, entry) line and folds prefixLen into the running
// maximum used for column alignment (§4.4).
func (a *Accumulator) Add(prefix, entry string, prefixLen int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, Line{Prefix: prefix, Entry: entry})
	if prefixLen > a.maxPrefixLen {
		a.maxPrefixLen = prefixLen
	}
}

// Len reports how many lines have been accumulated.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lines)
}

// MaxPrefixLen returns the widest prefix observed via Add.
func (a *Accumulator) MaxPrefixLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxPrefixLen
}

// Sorted returns a stably-sorted copy of the accumulated lines, ordered
// lexicographically by (prefix, entry). Duplicates are retained (§4.4).
func (a *Accumulator) Sorted() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Line, len(a.lines))
	copy(out, a.lines)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Prefix != out[j].Prefix {
			return out[i].Prefix < out[j].Prefix
		}
		return out[i].Entry < out[j].Entry
	})
	return out
}

// Print writes this accumulator's sorted lines to w. When prefixLen == 0
// each line is printed bare as "prefix<eol>" (the short form); otherwise as
// a left-justified two-column "prefix<TAB>entry<eol>" padded to prefixLen
// (the verbose/list form). An empty accumulator writes nothing and returns
// zero lines written.
func (a *Accumulator) Print(w io.Writer, prefixLen int, eol byte) (int, error) {
	lines := a.Sorted()
	if len(lines) == 0 {
		return 0, nil
	}

	bw := bufio.NewWriter(w)
	for _, l := range lines {
		var err error
		if prefixLen == 0 {
			_, err = fmt.Fprintf(bw, "%s%c", l.Prefix, eol)
		} else {
			_, err = fmt.Fprintf(bw, "%-*s\t%s%c", prefixLen, l.Prefix, l.Entry, eol)
		}
		if err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// Set is an ordered collection of per-repo accumulators, printed in
// configured repo order (§4.4 "deterministic repo order", §4.8 "output
// order equals configured repo order").
type Set struct {
	order []*Accumulator
}

// NewSet builds an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Add registers an accumulator, preserving insertion order.
func (s *Set) Add(a *Accumulator) {
	s.order = append(s.order, a)
}

// TotalLines sums Len() across every accumulator in the set.
func (s *Set) TotalLines() int {
	total := 0
	for _, a := range s.order {
		total += a.Len()
	}
	return total
}

// MaxPrefixLen returns the widest prefix across every accumulator in the
// set, used for unified column alignment across repos (§4.2).
func (s *Set) MaxPrefixLen() int {
	max := 0
	for _, a := range s.order {
		if l := a.MaxPrefixLen(); l > max {
			max = l
		}
	}
	return max
}

// Print writes every accumulator's results to w in repo order, sharing one
// column width when unified is true (the cross-repo alignment rule);
// otherwise each accumulator aligns to its own MaxPrefixLen. Returns the
// total number of lines written.
func (s *Set) Print(w io.Writer, eol byte, unified bool) (int, error) {
	sharedWidth := 0
	if unified {
		sharedWidth = s.MaxPrefixLen()
	}

	total := 0
	for _, a := range s.order {
		width := sharedWidth
		if !unified {
			width = a.MaxPrefixLen()
		}
		n, err := a.Print(w, width, eol)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
