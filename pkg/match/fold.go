package match

// ASCII-only case folding. Bytes outside A-Z are compared unchanged, so
// results do not depend on locale or Unicode tables.

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// EqualFold reports whether a and b are equal under ASCII case folding.
func EqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}

// CompareFold orders a and b after lowering ASCII letters, returning -1, 0 or
// +1 in the manner of strcasecmp.
func CompareFold(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ca, cb := lower(a[i]), lower(b[i])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// IndexFold returns the index of the first occurrence of sub in s under ASCII
// case folding, or -1.
func IndexFold(s, sub string) int {
	if len(sub) == 0 {
		return 0
	}
	first := lower(sub[0])
	for i := 0; i+len(sub) <= len(s); i++ {
		if lower(s[i]) != first {
			continue
		}
		if EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
