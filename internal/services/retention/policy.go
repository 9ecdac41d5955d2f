// Package retention decides which backup artifacts have outlived their
// retention window.
package retention

import (
	"fmt"
	"strings"
	"time"

	"github.com/fgeck/gameserver-console/internal/artifact"
)

// Category is the retention bucket of an artifact.
type Category string

// Retention categories.
const (
	CategoryFrequent Category = "frequent"
	CategoryHourly   Category = "hourly"
	CategoryDaily    Category = "daily"
	CategoryFileEdit Category = "file_edit"
	CategoryUnknown  Category = "unknown"
)

// Maximum ages in minutes.
const (
	FrequentMaxAge = 300
	HourlyMaxAge   = 720
	DailyMaxAge    = 20160
	FileEditMaxAge = 1440
)

// Strategy names accepted by New.
const (
	StrategyMaxAge    = "max_age"
	StrategyMarker    = "marker"
	StrategyTimestamp = "timestamp"
)

// Rule is the retention decision input for one artifact.
type Rule struct {
	Category      Category
	MaxAgeMinutes int64
}

// Strategy classifies an artifact into a Rule. Implementations must be pure.
type Strategy interface {
	Classify(name string, createdAt time.Time) Rule
}

// New returns the strategy registered under kind. maxAge is only used by the
// max_age strategy.
func New(kind string, maxAge time.Duration) (Strategy, error) {
	switch kind {
	case "", StrategyMaxAge:
		if maxAge <= 0 {
			return nil, fmt.Errorf("max_age retention requires a positive max age")
		}
		return MaxAgeStrategy{MaxAge: maxAge}, nil
	case StrategyMarker:
		return MarkerStrategy{}, nil
	case StrategyTimestamp:
		return TimestampStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown retention strategy %q", kind)
	}
}

// AgeMinutes returns the whole minutes elapsed between createdAt and now.
func AgeMinutes(now, createdAt time.Time) int64 {
	return int64(now.Sub(createdAt) / time.Minute)
}

// ShouldDelete reports whether an artifact created at createdAt is strictly
// older than the rule allows.
func ShouldDelete(rule Rule, now, createdAt time.Time) bool {
	return AgeMinutes(now, createdAt) > rule.MaxAgeMinutes
}

func unknownRule() Rule {
	return Rule{Category: CategoryUnknown, MaxAgeMinutes: DailyMaxAge}
}

// MarkerStrategy classifies by the suffix token of the artifact name.
type MarkerStrategy struct{}

// markerRules is ordered: the first matching suffix wins.
var markerRules = []struct {
	suffix string
	rule   Rule
}{
	{"-5min-backup", Rule{CategoryFrequent, FrequentMaxAge}},
	{"-hourly-backup", Rule{CategoryHourly, HourlyMaxAge}},
	{"-daily-backup", Rule{CategoryDaily, DailyMaxAge}},
	{"-mission-file-edit", Rule{CategoryFileEdit, FileEditMaxAge}},
	{"-file-edit", Rule{CategoryFileEdit, FileEditMaxAge}},
	{"-pre-restore", Rule{CategoryFileEdit, FileEditMaxAge}},
}

// Classify implements Strategy.
func (MarkerStrategy) Classify(name string, _ time.Time) Rule {
	for _, m := range markerRules {
		if strings.HasSuffix(name, m.suffix) {
			return m.rule
		}
	}
	return unknownRule()
}

// TimestampStrategy classifies by the alignment of the timestamp embedded in
// the artifact name: midnight is daily, full hours are hourly, the rest frequent.
type TimestampStrategy struct{}

// Classify implements Strategy.
func (TimestampStrategy) Classify(name string, _ time.Time) Rule {
	n, ok := artifact.Parse(name)
	if !ok {
		return unknownRule()
	}
	switch {
	case n.Minute == 0 && n.Hour == 0:
		return Rule{CategoryDaily, DailyMaxAge}
	case n.Minute == 0:
		return Rule{CategoryHourly, HourlyMaxAge}
	default:
		return Rule{CategoryFrequent, FrequentMaxAge}
	}
}

// MaxAgeStrategy applies one global maximum age to every artifact.
type MaxAgeStrategy struct {
	MaxAge time.Duration
}

// Classify implements Strategy.
func (s MaxAgeStrategy) Classify(_ string, _ time.Time) Rule {
	return Rule{Category: CategoryDaily, MaxAgeMinutes: int64(s.MaxAge / time.Minute)}
}
