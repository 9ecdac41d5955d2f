// Package artifact implements the naming convention of backup artifacts:
// <prefix>_<YYYY>-<MM>-<DD>-<HH>-<mm>[-<marker>].
package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultPrefix is the prefix used for mission-data artifacts.
const DefaultPrefix = "mpmissions"

// Markers appended to artifact names.
const (
	MarkerPreRestore = "pre-restore"
	MarkerFileEdit   = "file-edit"
)

const timestampLayout = "2006-01-02-15-04"

var (
	namePattern   = regexp.MustCompile(`^([A-Za-z0-9]+)_(\d{4})-(\d{1,2})-(\d{1,2})-(\d{1,2})-(\d{1,2})(?:-([A-Za-z0-9-]+))?$`)
	prefixPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// Name is a parsed artifact name.
type Name struct {
	Prefix string
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Marker string
}

// Time returns the embedded timestamp in loc.
func (n Name) Time(loc *time.Location) time.Time {
	return time.Date(n.Year, time.Month(n.Month), n.Day, n.Hour, n.Minute, 0, 0, loc)
}

// FormatName builds the artifact name for t at minute granularity.
func FormatName(prefix string, t time.Time, marker string) string {
	name := fmt.Sprintf("%s_%s", prefix, t.Format(timestampLayout))
	if marker != "" {
		name += "-" + marker
	}
	return name
}

// Parse parses an artifact name. Fields may be one or two digits wide.
func Parse(name string) (Name, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Name{}, false
	}

	fields := make([]int, 5)
	for i := range fields {
		v, err := strconv.Atoi(m[i+2])
		if err != nil {
			return Name{}, false
		}
		fields[i] = v
	}

	n := Name{
		Prefix: m[1],
		Year:   fields[0],
		Month:  fields[1],
		Day:    fields[2],
		Hour:   fields[3],
		Minute: fields[4],
		Marker: m[7],
	}
	if n.Month < 1 || n.Month > 12 || n.Day < 1 || n.Day > 31 || n.Hour > 23 || n.Minute > 59 {
		return Name{}, false
	}
	return n, true
}

// Matches reports whether name is an artifact name with the given prefix.
func Matches(name, prefix string) bool {
	n, ok := Parse(name)
	return ok && n.Prefix == prefix
}

// ValidPrefix reports whether prefix can be used in artifact names.
func ValidPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}
