package filter

import "sort"

// HintSet collects the dotted field paths a compiled query touches. The
// storage layer uses it to pick an index. It is not safe for concurrent
// use; each compile call owns its own set.
type HintSet struct {
	paths map[string]struct{}
}

// NewHintSet returns an empty set.
func NewHintSet() *HintSet {
	return &HintSet{paths: make(map[string]struct{})}
}

// Add inserts paths, ignoring empty strings.
func (h *HintSet) Add(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		h.paths[p] = struct{}{}
	}
}

// AddColumns inserts every field path referenced by e.
func (h *HintSet) AddColumns(e Expr) {
	h.Add(Columns(e)...)
}

// Has reports whether path is in the set.
func (h *HintSet) Has(path string) bool {
	if h == nil {
		return false
	}
	_, ok := h.paths[path]
	return ok
}

// Len returns the number of paths.
func (h *HintSet) Len() int {
	if h == nil {
		return 0
	}
	return len(h.paths)
}

// Sorted returns the paths in lexical order.
func (h *HintSet) Sorted() []string {
	if h == nil {
		return nil
	}
	out := make([]string, 0, len(h.paths))
	for p := range h.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
