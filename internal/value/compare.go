package value

import (
	"strings"
)

// Compare orders two values: Bool < Int < String < Tuple < Array across
// kinds, natural order within scalar kinds and lexicographic order for
// Tuple and Array. Strings are compared in NFC form, so Compare(a, b) == 0
// iff Key(a) == Key(b). A nil Value sorts before everything.
func Compare(a, b Value) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	ka, kb := a.Kind(), b.Kind()
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}

	switch av := a.(type) {
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Int:
		bv := b.(Int)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case String:
		return strings.Compare(nfc(string(av)), nfc(string(b.(String))))
	case Tuple:
		return compareSeq(av, b.(Tuple))
	case Array:
		return compareSeq(av, b.(Array))
	}
	return 0
}

func compareSeq(a, b []Value) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Equal reports structural equality.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Less reports whether a sorts before b.
func Less(a, b Value) bool {
	return Compare(a, b) < 0
}
