package services

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// Format appends suffix, zero-padded to width digits, to parent. Values that
// do not fit in width digits fail with ErrOverflow instead of widening.
func Format(parent string, suffix, width int) (string, error) {
	if width <= 0 {
		return "", errors.Errorf("invalid suffix width %d", width)
	}
	digits := strconv.Itoa(suffix)
	if suffix < 0 || len(digits) > width {
		return "", errors.Wrapf(ErrOverflow, "suffix %d does not fit in %d digits under %q", suffix, width, parent)
	}
	var b strings.Builder
	b.Grow(len(parent) + width)
	b.WriteString(parent)
	b.WriteString(strings.Repeat("0", width-len(digits)))
	b.WriteString(digits)
	return b.String(), nil
}

// nextSuffix parses the trailing width digits of latest and adds one.
func nextSuffix(latest string, width int) (int, error) {
	if len(latest) < width {
		return 0, errors.Errorf("identifier %q shorter than suffix width %d", latest, width)
	}
	n, err := strconv.Atoi(latest[len(latest)-width:])
	if err != nil {
		return 0, errors.Wrapf(err, "parse suffix of %q", latest)
	}
	return n + 1, nil
}
