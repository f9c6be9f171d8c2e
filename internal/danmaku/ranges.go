package danmaku

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NoneToken is the range string for an empty index set.
const NoneToken = "none"

// FormatRanges compresses episode indices into "1-3, 5, 8-10" form.
func FormatRanges(indices []int) string {
	if len(indices) == 0 {
		return NoneToken
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	unique := sorted[:1]
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}

	tokens := make([]string, 0, len(unique))
	start, end := unique[0], unique[0]
	flush := func() {
		if start == end {
			tokens = append(tokens, strconv.Itoa(start))
		} else {
			tokens = append(tokens, fmt.Sprintf("%d-%d", start, end))
		}
	}
	for _, v := range unique[1:] {
		if v == end+1 {
			end = v
			continue
		}
		flush()
		start, end = v, v
	}
	flush()
	return strings.Join(tokens, ", ")
}

// ParseRanges expands a FormatRanges string back into sorted indices.
func ParseRanges(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == NoneToken {
		return nil, nil
	}
	var out []int
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		lo, hi, isRange := strings.Cut(token, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("parse range %q: %w", token, err)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("parse range %q: %w", token, err)
			}
			if end < start {
				return nil, fmt.Errorf("parse range %q: end before start", token)
			}
		}
		for v := start; v <= end; v++ {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out, nil
}
