package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/citizen-docs/internal/common"
)

var (
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateSeparators = regexp.MustCompile(`[/-]`)
)

// Date converts DD/MM/YYYY (or DD-MM-YYYY) to YYYY-MM-DD. Input that is
// already YYYY-MM-DD is returned unchanged. Anything else is a
// *common.DateFormatError; the function never guesses.
func Date(input string) (string, error) {
	s := strings.TrimSpace(input)
	if isoDatePattern.MatchString(s) {
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return "", &common.DateFormatError{Input: input, Reason: "not a calendar date"}
		}
		return s, nil
	}

	parts := dateSeparators.Split(s, -1)
	if len(parts) != 3 {
		return "", &common.DateFormatError{Input: input, Reason: fmt.Sprintf("expected 3 parts, got %d", len(parts))}
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return "", &common.DateFormatError{Input: input, Reason: fmt.Sprintf("part %q is not numeric", p)}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", &common.DateFormatError{Input: input, Reason: err.Error()}
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]
	if len(parts[2]) != 4 {
		return "", &common.DateFormatError{Input: input, Reason: "year must have 4 digits"}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return "", &common.DateFormatError{Input: input, Reason: "not a calendar date"}
	}
	return t.Format(time.DateOnly), nil
}
