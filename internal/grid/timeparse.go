package grid

import (
	"fmt"
	"time"
)

// timeLayouts are tried in order. Layouts without a zone are read as UTC,
// the reference of the ERA5 time axis.
var timeLayouts = []string{
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseTime parses a query window bound. An empty string is an open bound
// and yields nil.
func ParseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse time %q: want RFC3339, %q or %q", s, time.DateTime, time.DateOnly)
}
