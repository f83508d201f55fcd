// Package scheduling holds the pure slot and grouping rules shared by order validation,
// availability listing and deposit confirmation.
package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

// DateLayout is the calendar date format used by orders, schedules and query parameters.
const DateLayout = "2006-01-02"

const minutesPerDay = 24 * 60

var (
	// ErrInvalidClock reports a time of day that is not zero-padded 24h HH:MM.
	ErrInvalidClock = errors.New("scheduling: invalid time of day")
	// ErrInvalidDate reports a calendar date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("scheduling: invalid date")
	// ErrInvalidOperatingHours reports a malformed operating-hours rule.
	ErrInvalidOperatingHours = errors.New("scheduling: invalid operating hours")
)

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	value = strings.TrimSpace(value)
	if len(value) != 5 || value[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hours, err := strconv.Atoi(value[:2])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minutes, err := strconv.Atoi(value[3:])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return hours*60 + minutes, nil
}

// FormatClock renders minutes after midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a YYYY-MM-DD calendar date at midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed, nil
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayWindow returns the inclusive [00:00:00.000, 23:59:59.999] bounds of the day containing date.
func DayWindow(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// ValidateOperatingHours checks every rule for a valid weekday, clock values, a positive slot
// duration and an end strictly after the start.
func ValidateOperatingHours(rules []domain.OperatingHours) error {
	for i, rule := range rules {
		if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
			return fmt.Errorf("%w: rule %d day of week must be between 0 and 6", ErrInvalidOperatingHours, i)
		}
		start, err := ParseClock(rule.StartTime)
		if err != nil {
			return fmt.Errorf("%w: rule %d start time: %v", ErrInvalidOperatingHours, i, err)
		}
		end, err := ParseClock(rule.EndTime)
		if err != nil {
			return fmt.Errorf("%w: rule %d end time: %v", ErrInvalidOperatingHours, i, err)
		}
		if end <= start {
			return fmt.Errorf("%w: rule %d end time must be after start time", ErrInvalidOperatingHours, i)
		}
		if rule.SlotDurationMinutes <= 0 || rule.SlotDurationMinutes > minutesPerDay {
			return fmt.Errorf("%w: rule %d slot duration must be positive", ErrInvalidOperatingHours, i)
		}
	}
	return nil
}

// GenerateSlots returns the sorted, deduplicated slot start times a team offers on date. Rules for
// other weekdays and malformed rules contribute nothing; a slot that would run past the closing time
// is never emitted.
func GenerateSlots(rules []domain.OperatingHours, date time.Time) []string {
	weekday := int(date.Weekday())
	seen := make(map[string]struct{})
	slots := make([]string, 0)

	for _, rule := range rules {
		if rule.DayOfWeek != weekday || rule.SlotDurationMinutes <= 0 {
			continue
		}
		start, err := ParseClock(rule.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseClock(rule.EndTime)
		if err != nil || end <= start {
			continue
		}
		for slot := start; slot+rule.SlotDurationMinutes <= end; slot += rule.SlotDurationMinutes {
			label := FormatClock(slot)
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			slots = append(slots, label)
		}
	}

	// Zero-padded HH:MM sorts chronologically as a string.
	sort.Strings(slots)
	return slots
}

// IsValidSlot reports whether slot is one of the generated slots for date.
func IsValidSlot(rules []domain.OperatingHours, date time.Time, slot string) bool {
	slot = strings.TrimSpace(slot)
	for _, candidate := range GenerateSlots(rules, date) {
		if candidate == slot {
			return true
		}
	}
	return false
}
