package labels

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Set is an immutable snapshot of the labels of a pull request.
// Names are parsed once when the Set is created.
type Set struct {
	names  mapset.Set[string]
	parsed []Label
}

func NewSet(names ...string) *Set {
	set := mapset.NewThreadUnsafeSet[string](names...)

	sorted := set.ToSlice()
	sort.Strings(sorted)

	parsed := make([]Label, 0, len(sorted))
	for _, n := range sorted {
		parsed = append(parsed, Parse(n))
	}

	return &Set{names: set, parsed: parsed}
}

func (s *Set) Has(name string) bool {
	return s.names.Contains(name)
}

func (s *Set) Len() int {
	return s.names.Cardinality()
}

// Labels returns all labels sorted by name.
func (s *Set) Labels() []Label {
	return append([]Label(nil), s.parsed...)
}

// Names returns the label names sorted.
func (s *Set) Names() []string {
	result := make([]string, 0, len(s.parsed))
	for _, l := range s.parsed {
		result = append(result, l.Name)
	}

	return result
}

// OfKind returns all labels of the given kinds sorted by name.
func (s *Set) OfKind(kinds ...Kind) []Label {
	var result []Label

	for _, l := range s.parsed {
		for _, k := range kinds {
			if l.Kind == k {
				result = append(result, l)
				break
			}
		}
	}

	return result
}

// Missing returns the names of want that are not in the set, in the order of
// want.
func (s *Set) Missing(want []string) []string {
	var result []string

	for _, w := range want {
		if !s.names.Contains(w) {
			result = append(result, w)
		}
	}

	return result
}
