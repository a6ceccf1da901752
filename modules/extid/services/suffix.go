package services

// MaxSuffix returns the greatest candidate that is a valid identifier at the
// baseline's shape, or baseline when none qualifies. The baseline is the
// parent identifier followed by width zeros; a candidate qualifies when it is
// all digits, has the baseline's length and shares its parent prefix. Equal
// length makes the lexicographic comparison a numeric one.
func MaxSuffix(candidates []string, width int, baseline string) string {
	prefix, ok := splitBaseline(baseline, width)
	if !ok {
		return baseline
	}
	best := baseline
	for _, c := range candidates {
		if !qualifies(c, prefix, len(baseline)) {
			continue
		}
		if c > best {
			best = c
		}
	}
	return best
}

// SuffixMismatches returns the non-empty candidates MaxSuffix ignores: those
// with a foreign width or prefix, e.g. identifiers written under an older
// format or carried over from another parent, and non-numeric ones.
func SuffixMismatches(candidates []string, width int, baseline string) []string {
	prefix, ok := splitBaseline(baseline, width)
	if !ok {
		return nil
	}
	var out []string
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if !qualifies(c, prefix, len(baseline)) {
			out = append(out, c)
		}
	}
	return out
}

// Baseline is the identifier an empty sibling set compares against.
func Baseline(parent string, width int) string {
	b := make([]byte, 0, len(parent)+width)
	b = append(b, parent...)
	for i := 0; i < width; i++ {
		b = append(b, '0')
	}
	return string(b)
}

func splitBaseline(baseline string, width int) (string, bool) {
	if width <= 0 || len(baseline) < width {
		return "", false
	}
	return baseline[:len(baseline)-width], true
}

func qualifies(c, prefix string, length int) bool {
	return len(c) == length && isDigits(c) && c[:len(prefix)] == prefix
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
