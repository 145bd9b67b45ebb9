package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SettingsVersion is the current settings object version.
const SettingsVersion = 1

// TimeRange is a clock-time range in "HH:MM" 24h form.
// An end before the start wraps past midnight.
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// DaySchedule is the enforcement schedule for one weekday.
type DaySchedule struct {
	// Enabled turns enforcement on for the day.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Ranges are the active windows. An enabled day with no ranges is
	// active all day.
	Ranges []TimeRange `json:"ranges" yaml:"ranges"`
}

// WeeklySchedule maps each weekday to its schedule.
type WeeklySchedule struct {
	Mon DaySchedule `json:"mon" yaml:"mon"`
	Tue DaySchedule `json:"tue" yaml:"tue"`
	Wed DaySchedule `json:"wed" yaml:"wed"`
	Thu DaySchedule `json:"thu" yaml:"thu"`
	Fri DaySchedule `json:"fri" yaml:"fri"`
	Sat DaySchedule `json:"sat" yaml:"sat"`
	Sun DaySchedule `json:"sun" yaml:"sun"`
}

// StrictMode is the settings time lock. While enabled and unexpired, all
// settings mutation is refused.
type StrictMode struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ExpiresAt is the unix-millisecond expiry, nil for no deadline.
	ExpiresAt *int64 `json:"expiresAt" yaml:"expiresAt"`
}

// Settings is the singleton configuration object.
type Settings struct {
	Version   int            `json:"version" yaml:"version"`
	CreatedAt int64          `json:"createdAt" yaml:"createdAt"`
	Schedule  WeeklySchedule `json:"schedule" yaml:"schedule"`

	// WhitelistPatterns are regex strings that always allow a page.
	WhitelistPatterns []string `json:"whitelistPatterns" yaml:"whitelistPatterns"`

	// BlacklistPatterns are regex strings that block a page.
	BlacklistPatterns []string `json:"blacklistPatterns" yaml:"blacklistPatterns"`

	StrictMode StrictMode `json:"strictMode" yaml:"strictMode"`
}

// Default returns settings for first use: enforcement active Mon-Fri
// 09:00-18:00, weekends off, empty pattern lists, strict mode disabled.
func Default(now time.Time) Settings {
	workday := DaySchedule{Enabled: true, Ranges: []TimeRange{{Start: "09:00", End: "18:00"}}}
	weekend := DaySchedule{Enabled: false, Ranges: nil}

	return Settings{
		Version:   SettingsVersion,
		CreatedAt: now.UnixMilli(),
		Schedule: WeeklySchedule{
			Mon: workday,
			Tue: workday,
			Wed: workday,
			Thu: workday,
			Fri: workday,
			Sat: weekend,
			Sun: weekend,
		},
		WhitelistPatterns: []string{},
		BlacklistPatterns: []string{},
		StrictMode:        StrictMode{Enabled: false, ExpiresAt: nil},
	}
}

// day returns the schedule for t's weekday.
func (w WeeklySchedule) day(t time.Time) DaySchedule {
	switch t.Weekday() {
	case time.Monday:
		return w.Mon
	case time.Tuesday:
		return w.Tue
	case time.Wednesday:
		return w.Wed
	case time.Thursday:
		return w.Thu
	case time.Friday:
		return w.Fri
	case time.Saturday:
		return w.Sat
	default:
		return w.Sun
	}
}

// ActiveAt reports whether enforcement is active at the given local time.
//
// A disabled day is never active. An enabled day with no ranges is active
// all day. Range ends are inclusive; a range whose end precedes its start
// wraps past midnight. Unparseable ranges are skipped.
func (w WeeklySchedule) ActiveAt(t time.Time) bool {
	day := w.day(t)
	if !day.Enabled {
		return false
	}
	if len(day.Ranges) == 0 {
		return true
	}

	nowMinutes := t.Hour()*60 + t.Minute()
	for _, r := range day.Ranges {
		startMin, err := parseClock(r.Start)
		if err != nil {
			continue
		}
		endMin, err := parseClock(r.End)
		if err != nil {
			continue
		}
		if endMin >= startMin {
			if nowMinutes >= startMin && nowMinutes <= endMin {
				return true
			}
		} else {
			// Overnight range
			if nowMinutes >= startMin || nowMinutes <= endMin {
				return true
			}
		}
	}
	return false
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// lockedAt reports whether strict mode locks mutation at the given time.
// Enabled strict mode with no deadline locks indefinitely.
func (s Settings) lockedAt(now time.Time) bool {
	if !s.StrictMode.Enabled {
		return false
	}
	return s.StrictMode.ExpiresAt == nil || *s.StrictMode.ExpiresAt > now.UnixMilli()
}
