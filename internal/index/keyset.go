package index

import "sort"

// KeySet is a set of primary keys
type KeySet map[string]struct{}

// NewKeySet creates a set holding keys
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Intersect returns the keys present in both sets
func (s KeySet) Intersect(other KeySet) KeySet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(KeySet, len(small))
	for k := range small {
		if large.Has(k) {
			out.Add(k)
		}
	}
	return out
}

// Union returns the keys present in either set
func (s KeySet) Union(other KeySet) KeySet {
	out := make(KeySet, len(s)+len(other))
	for k := range s {
		out.Add(k)
	}
	for k := range other {
		out.Add(k)
	}
	return out
}

// Sorted returns the keys in ascending order
func (s KeySet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
