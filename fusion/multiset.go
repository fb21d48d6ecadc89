package fusion

import "sort"

// StringMultiset counts occurrences of string keys. The zero value is not
// usable; create one with NewStringMultiset. Thread compatible.
type StringMultiset struct {
	counts map[string]int
}

// NewStringMultiset creates an empty multiset.
func NewStringMultiset() *StringMultiset {
	return &StringMultiset{counts: map[string]int{}}
}

// Add increments the count of key by one.
func (s *StringMultiset) Add(key string) { s.counts[key]++ }

// AddN increments the count of key by n.
func (s *StringMultiset) AddN(key string, n int) { s.counts[key] += n }

// Count returns the count of key. It returns 0 for keys never added.
func (s *StringMultiset) Count(key string) int { return s.counts[key] }

// Len returns the number of distinct keys.
func (s *StringMultiset) Len() int { return len(s.counts) }

// AtLeast returns the keys whose count is >= threshold, in sorted order.
func (s *StringMultiset) AtLeast(threshold int) []string {
	var keys []string
	for k, n := range s.counts {
		if n >= threshold {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Merge adds all the counts in o to s.
func (s *StringMultiset) Merge(o *StringMultiset) {
	for k, n := range o.counts {
		s.counts[k] += n
	}
}

// Reset removes all keys.
func (s *StringMultiset) Reset() {
	for k := range s.counts {
		delete(s.counts, k)
	}
}

// Map returns a copy of the counts.
func (s *StringMultiset) Map() map[string]int {
	m := make(map[string]int, len(s.counts))
	for k, n := range s.counts {
		m[k] = n
	}
	return m
}

// NewStringMultisetFromMap creates a multiset with the given counts.
func NewStringMultisetFromMap(m map[string]int) *StringMultiset {
	s := NewStringMultiset()
	for k, n := range m {
		s.counts[k] = n
	}
	return s
}
