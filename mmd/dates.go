package mmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// solrDate is the only datetime form the index accepts.
var solrDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z$`)

// shortOffset matches a truncated numeric zone such as "+00:0", which
// some harvested records carry.
var shortOffset = regexp.MustCompile(`([+-]\d{2}):(\d)$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ValidDate reports whether s is already in the index datetime form.
func ValidDate(s string) bool {
	return solrDate.MatchString(s)
}

// ParseDate coerces a datetime string from harvested metadata into the
// index form 2006-01-02T15:04:05Z. Offsets are folded into UTC and
// fractional seconds dropped; strings already in index form pass
// through unchanged.
func ParseDate(s string) (string, error) {
	date := strings.TrimSpace(s)
	if date == "" {
		return "", errors.New("empty date")
	}
	if solrDate.MatchString(date) {
		return date, nil
	}
	t, err := parseTime(date)
	if err != nil {
		return "", err
	}
	return t.Format(time.RFC3339), nil
}

func parseTime(date string) (time.Time, error) {
	fixed := shortOffset.ReplaceAllString(date, "${1}:0${2}")
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, fixed)
		if err != nil {
			continue
		}
		return t.UTC().Truncate(time.Second), nil
	}
	return time.Time{}, errors.Errorf("unparseable date %q", date)
}
