package utils

import "sort"

// StringSet dedupes strings gathered from several Gateway replies. Not safe for concurrent use.
type StringSet map[string]struct{}

func CreateStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	s.AddAll(items...)
	return s
}

func (s StringSet) Add(item string) {
	s[item] = struct{}{}
}

func (s StringSet) AddAll(items ...string) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

func (s StringSet) Has(item string) bool {
	_, has := s[item]
	return has
}

// Sorted returns the members in ascending order, never nil.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// StringSetIndex is a set of strings per key, e.g. the uids of every group.
type StringSetIndex map[string]StringSet

func (idx StringSetIndex) Add(key, item string) {
	set, has := idx[key]
	if !has {
		set = StringSet{}
		idx[key] = set
	}
	set.Add(item)
}

func (idx StringSetIndex) Lists() map[string][]string {
	out := make(map[string][]string, len(idx))
	for key, set := range idx {
		out[key] = set.Sorted()
	}
	return out
}

func (idx StringSetIndex) Counts() map[string]int {
	out := make(map[string]int, len(idx))
	for key, set := range idx {
		out[key] = len(set)
	}
	return out
}
