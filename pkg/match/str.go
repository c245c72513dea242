package match

import "strings"

// Location selects where Contains looks for the needle.
type Location uint8

const (
	Any Location = iota
	Start
	End
)

func (l Location) String() string {
	switch l {
	case Start:
		return "start"
	case End:
		return "end"
	default:
		return "any"
	}
}

// EqStr matches strings equal to v. Without caseSensitive, ASCII letters are
// folded before comparing.
func EqStr(xs []string, v string, caseSensitive bool) uint64 {
	xs = clip(xs)
	var m uint64
	for i, x := range xs {
		var ok bool
		if caseSensitive {
			ok = x == v
		} else {
			ok = EqualFold(x, v)
		}
		if ok {
			m |= 1 << uint(i)
		}
	}
	return m
}

// LtStr matches strings ordered bytewise before v.
func LtStr(xs []string, v string, caseSensitive bool) uint64 {
	return cmpStr(xs, v, caseSensitive, -1)
}

// GtStr matches strings ordered bytewise after v.
func GtStr(xs []string, v string, caseSensitive bool) uint64 {
	return cmpStr(xs, v, caseSensitive, 1)
}

func cmpStr(xs []string, v string, caseSensitive bool, want int) uint64 {
	xs = clip(xs)
	var m uint64
	for i, x := range xs {
		var c int
		if caseSensitive {
			c = strings.Compare(x, v)
		} else {
			c = CompareFold(x, v)
		}
		if c == want {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Contains matches strings that contain needle at the given location. An
// empty needle matches every string.
func Contains(xs []string, needle string, caseSensitive bool, loc Location) uint64 {
	xs = clip(xs)
	var m uint64
	for i, x := range xs {
		if contains(x, needle, caseSensitive, loc) {
			m |= 1 << uint(i)
		}
	}
	return m
}

func contains(s, needle string, caseSensitive bool, loc Location) bool {
	if len(needle) > len(s) {
		return false
	}
	switch loc {
	case Start:
		s = s[:len(needle)]
	case End:
		s = s[len(s)-len(needle):]
	default:
		if caseSensitive {
			return strings.Contains(s, needle)
		}
		return IndexFold(s, needle) >= 0
	}
	if caseSensitive {
		return s == needle
	}
	return EqualFold(s, needle)
}
