package hintstate

import "sort"

// LevelSet is a set of 0-based hint levels kept in first-insertion order, the
// order the persisted JSON array uses.
type LevelSet []int

// Contains reports membership.
func (s LevelSet) Contains(level int) bool {
	for _, l := range s {
		if l == level {
			return true
		}
	}
	return false
}

// Clone returns an independent copy; never nil.
func (s LevelSet) Clone() LevelSet {
	out := make(LevelSet, len(s))
	copy(out, s)
	return out
}

// Sorted returns the levels in ascending order.
func (s LevelSet) Sorted() LevelSet {
	out := s.Clone()
	sort.Ints(out)
	return out
}

func (s LevelSet) with(level int) LevelSet {
	if s.Contains(level) {
		return s.Clone()
	}
	return append(s.Clone(), level)
}

func (s LevelSet) without(level int) LevelSet {
	out := make(LevelSet, 0, len(s))
	for _, l := range s {
		if l != level {
			out = append(out, l)
		}
	}
	return out
}

// normalize drops negatives and duplicates from data read back from storage.
func normalize(levels []int) LevelSet {
	out := make(LevelSet, 0, len(levels))
	for _, l := range levels {
		if l >= 0 && !out.Contains(l) {
			out = append(out, l)
		}
	}
	return out
}
