package adjustment

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"jpx-stock-lab/internal/frame"
)

// dateLayouts are tried in order when a date column is stored as strings.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate parses a calendar date in any of the supported layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableDate, s)
}

// DateIndex returns the distinct dates of dateColumn across every security
// in the panel, sorted ascending.
func DateIndex(panel *frame.Frame, dateColumn string) ([]time.Time, error) {
	dates, err := dateValues(panel, dateColumn)
	if err != nil {
		return nil, err
	}

	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	result := make([]time.Time, 0, len(sorted))
	for i, d := range sorted {
		if i > 0 && d.Equal(sorted[i-1]) {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

// dateValues reads a date column stored either as times or as date strings.
func dateValues(panel *frame.Frame, name string) ([]time.Time, error) {
	col, err := panel.Column(name)
	if err != nil {
		return nil, fmt.Errorf("date column: %w", err)
	}

	switch col.Kind {
	case frame.KindTime:
		return col.Times, nil
	case frame.KindString:
		out := make([]time.Time, len(col.Strings))
		for i, s := range col.Strings {
			t, err := ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("date column %q row %d: %w", name, i, err)
			}
			out[i] = t
		}
		return out, nil
	default:
		return nil, fmt.Errorf("date column %q: %w: got %s", name, frame.ErrKindMismatch, col.Kind)
	}
}

// codeValues reads a security identifier column stored as strings or numbers.
func codeValues(panel *frame.Frame, name string) ([]string, error) {
	col, err := panel.Column(name)
	if err != nil {
		return nil, fmt.Errorf("code column: %w", err)
	}

	switch col.Kind {
	case frame.KindString:
		return col.Strings, nil
	case frame.KindFloat:
		out := make([]string, len(col.Floats))
		for i, v := range col.Floats {
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("code column %q: %w: got %s", name, frame.ErrKindMismatch, col.Kind)
	}
}

// Codes returns the distinct security identifiers of the panel in first-seen order.
func Codes(panel *frame.Frame, codeColumn string) ([]string, error) {
	codes, err := codeValues(panel, codeColumn)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(codes))
	var result []string
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		result = append(result, c)
	}
	return result, nil
}
