package scheduling

import (
	"strconv"
	"strings"
)

// SelectionKind is the outcome of parsing an alternative-selection message.
type SelectionKind int

const (
	// SelectionNone means no ordinal reference was found, or the reference
	// was out of range for the offered list.
	SelectionNone SelectionKind = iota
	// SelectionAmbiguous means the message referenced more than one option.
	SelectionAmbiguous
	// SelectionSelected means exactly one in-range option was referenced.
	SelectionSelected
)

// Selection is the typed result of the ordinal grammar. Index is zero-based
// and only meaningful when Kind is SelectionSelected.
type Selection struct {
	Kind  SelectionKind
	Index int
}

var ordinalWords = map[string]int{
	"first":  0,
	"second": 1,
	"third":  2,
	"fourth": 3,
	"fifth":  4,
	"1st":    0,
	"2nd":    1,
	"3rd":    2,
	"4th":    3,
	"5th":    4,
}

var affirmations = map[string]bool{
	"yes":       true,
	"yeah":      true,
	"yep":       true,
	"ok":        true,
	"okay":      true,
	"sure":      true,
	"fine":      true,
	"perfect":   true,
	"great":     true,
	"works":     true,
	"deal":      true,
	"confirm":   true,
	"confirmed": true,
}

// ParseSelection interprets free text as a reference into an ordered list of
// optionCount offered slots. The grammar is deliberately small: a bare
// number, an ordinal word, or "option N" / "number N". A plain affirmation
// counts as picking the only option when exactly one was offered.
func ParseSelection(text string, optionCount int) Selection {
	if optionCount <= 0 {
		return Selection{Kind: SelectionNone}
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	indices := make([]int, 0, 2)
	affirmed := false

	for i, word := range words {
		if idx, ok := ordinalWords[word]; ok {
			indices = appendIndex(indices, idx)
			continue
		}
		if n, err := strconv.Atoi(word); err == nil {
			// "at 3" is a time reference, not an ordinal.
			if i > 0 && words[i-1] == "at" {
				continue
			}
			indices = appendIndex(indices, n-1)
			continue
		}
		if affirmations[word] {
			affirmed = true
		}
	}

	switch len(indices) {
	case 0:
		if affirmed && optionCount == 1 {
			return Selection{Kind: SelectionSelected, Index: 0}
		}
		return Selection{Kind: SelectionNone}
	case 1:
		if indices[0] < 0 || indices[0] >= optionCount {
			return Selection{Kind: SelectionNone}
		}
		return Selection{Kind: SelectionSelected, Index: indices[0]}
	default:
		return Selection{Kind: SelectionAmbiguous}
	}
}

// IsAffirmation reports whether the text is a plain agreement ("yes",
// "sure"). Used to confirm a held slot when there is no offered list to
// index into.
func IsAffirmation(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, word := range words {
		if affirmations[word] {
			return true
		}
	}
	return false
}

func appendIndex(indices []int, idx int) []int {
	for _, existing := range indices {
		if existing == idx {
			return indices
		}
	}
	return append(indices, idx)
}
