package era5

import (
	"fmt"
	"strings"
	"time"
)

// ERA5 files from the legacy CDS encode time as hours since 1900-01-01.
var epoch1900 = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var epochLayouts = []string{
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// timeUnits is a decoded CF "<unit> since <epoch>" attribute.
type timeUnits struct {
	step  time.Duration
	epoch time.Time
}

// parseTimeUnits decodes a CF time units attribute such as
// "hours since 1900-01-01 00:00:00.0". An empty string yields the ERA5
// default of hours since 1900.
func parseTimeUnits(s string) (timeUnits, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return timeUnits{step: time.Hour, epoch: epoch1900}, nil
	}
	unit, since, ok := strings.Cut(s, " since ")
	if !ok {
		return timeUnits{}, fmt.Errorf("time units %q: expected \"<unit> since <date>\"", s)
	}
	var u timeUnits
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "sec", "s":
		u.step = time.Second
	case "minutes", "minute", "mins", "min":
		u.step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		u.step = time.Hour
	case "days", "day", "d":
		u.step = 24 * time.Hour
	default:
		return timeUnits{}, fmt.Errorf("time units %q: unsupported unit %q", s, unit)
	}
	since = strings.TrimSuffix(strings.TrimSpace(since), " UTC")
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, since); err == nil {
			u.epoch = t.UTC()
			return u, nil
		}
	}
	return timeUnits{}, fmt.Errorf("time units %q: cannot parse reference date %q", s, since)
}

// decode converts raw offsets to UTC timestamps.
func (u timeUnits) decode(offsets []float64) []time.Time {
	ts := make([]time.Time, len(offsets))
	for i, v := range offsets {
		whole := int64(v)
		frac := v - float64(whole)
		ts[i] = u.epoch.Add(time.Duration(whole)*u.step + time.Duration(frac*float64(u.step)))
	}
	return ts
}

// FileName returns the conventional dataset file name for a variable over
// the months spanned by [start, end], e.g.
// "2m_temperature_2020_09_to_2020_09.nc".
func FileName(variable string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_to_%s.nc", variable, start.UTC().Format("2006_01"), end.UTC().Format("2006_01"))
}
