package model

import (
	"errors"
	"sort"
)

var (
	ErrUnknownBlank  = errors.New("unknown blank label")
	ErrUnknownChoice = errors.New("unknown choice code")
)

// AnswerSet maps a blank label ("a", "b", …) to the selected choice code.
// An empty value means the blank is unanswered.
type AnswerSet map[string]string

// BlankLabel returns the label of the idx-th blank: 0 → "a", 1 → "b", …
func BlankLabel(idx int) string {
	return string(rune('a' + idx))
}

// NewAnswerSet derives the empty AnswerSet of a question, one blank per choice.
func NewAnswerSet(q *Question) AnswerSet {
	answers := make(AnswerSet, len(q.Choices))
	for i := range q.Choices {
		answers[BlankLabel(i)] = ""
	}
	return answers
}

// Clone returns an independent copy.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Set updates one blank. Keys are fixed at load time, so unknown labels are rejected.
func (a AnswerSet) Set(label, value string) error {
	if _, ok := a[label]; !ok {
		return ErrUnknownBlank
	}
	a[label] = value
	return nil
}

// Labels returns the blank labels in order.
func (a AnswerSet) Labels() []string {
	labels := make([]string, 0, len(a))
	for k := range a {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

// Answered counts the blanks with a selection.
func (a AnswerSet) Answered() int {
	n := 0
	for _, v := range a {
		if v != "" {
			n++
		}
	}
	return n
}
