package narrative

import (
	"errors"
	"fmt"
)

// #region label

// Label is one structural role a story position can occupy.
type Label string

const (
	Introduction     Label = "Introduction"
	IncitingIncident Label = "Inciting_Incident"
	RisingAction     Label = "Rising_Action"
	Conflict         Label = "Conflict"
	Dialogue         Label = "Dialogue"
	Description      Label = "Description"
	Twist            Label = "Twist"
	Revelation       Label = "Revelation"
	Climax           Label = "Climax"
	Resolution       Label = "Resolution"
	StoryEnd         Label = "Story_End"
)

// #endregion label

// #region errors

var (
	ErrEmptyAlphabet  = errors.New("alphabet has no labels")
	ErrDuplicateLabel = errors.New("duplicate label in alphabet")
	ErrUnknownLabel   = errors.New("label not in alphabet")
)

// #endregion errors

// #region alphabet

// Alphabet is a closed, ordered label set with a dense index.
// Iteration order is the construction order and is used everywhere a
// deterministic order is needed (sampling, argmax ties, matrix layout).
type Alphabet struct {
	labels []Label
	index  map[Label]int
}

// NewAlphabet builds an alphabet from labels in the given order.
func NewAlphabet(labels ...Label) (*Alphabet, error) {
	if len(labels) == 0 {
		return nil, ErrEmptyAlphabet
	}
	a := &Alphabet{
		labels: make([]Label, len(labels)),
		index:  make(map[Label]int, len(labels)),
	}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("label %d: %w", i, ErrEmptyAlphabet)
		}
		if _, dup := a.index[l]; dup {
			return nil, fmt.Errorf("%s: %w", l, ErrDuplicateLabel)
		}
		a.labels[i] = l
		a.index[l] = i
	}
	return a, nil
}

// ExtendedAlphabet returns the 11-label alphabet, Introduction through Story_End.
func ExtendedAlphabet() *Alphabet {
	a, _ := NewAlphabet(
		Introduction, IncitingIncident, RisingAction, Conflict, Dialogue, Description,
		Twist, Revelation, Climax, Resolution, StoryEnd,
	)
	return a
}

// LegacyAlphabet returns the 9-label alphabet without Revelation and Story_End.
func LegacyAlphabet() *Alphabet {
	a, _ := NewAlphabet(
		Introduction, IncitingIncident, RisingAction, Conflict, Dialogue, Description,
		Twist, Climax, Resolution,
	)
	return a
}

// AlphabetByName resolves a configured alphabet variant.
func AlphabetByName(name string) (*Alphabet, error) {
	switch name {
	case "", "extended":
		return ExtendedAlphabet(), nil
	case "legacy":
		return LegacyAlphabet(), nil
	default:
		return nil, fmt.Errorf("unknown alphabet variant %q", name)
	}
}

// Len returns the number of labels.
func (a *Alphabet) Len() int { return len(a.labels) }

// Labels returns a copy of the labels in alphabet order.
func (a *Alphabet) Labels() []Label {
	out := make([]Label, len(a.labels))
	copy(out, a.labels)
	return out
}

// At returns the label at dense index i.
func (a *Alphabet) At(i int) Label { return a.labels[i] }

// Index returns the dense index of l.
func (a *Alphabet) Index(l Label) (int, bool) {
	i, ok := a.index[l]
	return i, ok
}

// Contains reports whether l belongs to the alphabet.
func (a *Alphabet) Contains(l Label) bool {
	_, ok := a.index[l]
	return ok
}

// Equal reports whether both alphabets hold the same labels in the same order.
func (a *Alphabet) Equal(b *Alphabet) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || len(a.labels) != len(b.labels) {
		return false
	}
	for i := range a.labels {
		if a.labels[i] != b.labels[i] {
			return false
		}
	}
	return true
}

// #endregion alphabet
