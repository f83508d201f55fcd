package scheduling

import (
	"errors"
	"reflect"
	"testing"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := ParseDate(value, time.UTC)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return date
}

func TestGenerateSlots_MondayRule(t *testing.T) {
	rules := []domain.OperatingHours{{DayOfWeek: 1, StartTime: "08:00", EndTime: "12:00", SlotDurationMinutes: 120}}

	monday := mustDate(t, "2025-06-09")
	if got := GenerateSlots(rules, monday); !reflect.DeepEqual(got, []string{"08:00", "10:00"}) {
		t.Fatalf("expected [08:00 10:00], got %v", got)
	}

	tuesday := mustDate(t, "2025-06-10")
	if got := GenerateSlots(rules, tuesday); len(got) != 0 {
		t.Fatalf("expected no slots on tuesday, got %v", got)
	}
}

func TestGenerateSlots_ExcludesPartialSlots(t *testing.T) {
	rules := []domain.OperatingHours{{DayOfWeek: 2, StartTime: "09:00", EndTime: "11:30", SlotDurationMinutes: 60}}
	got := GenerateSlots(rules, mustDate(t, "2025-06-10"))
	want := []string{"09:00", "10:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGenerateSlots_MergesSplitWindows(t *testing.T) {
	rules := []domain.OperatingHours{
		{DayOfWeek: 3, StartTime: "14:00", EndTime: "18:00", SlotDurationMinutes: 120},
		{DayOfWeek: 3, StartTime: "08:00", EndTime: "12:00", SlotDurationMinutes: 60},
		{DayOfWeek: 3, StartTime: "08:00", EndTime: "10:00", SlotDurationMinutes: 120},
		{DayOfWeek: 4, StartTime: "08:00", EndTime: "12:00", SlotDurationMinutes: 60},
	}
	got := GenerateSlots(rules, mustDate(t, "2025-06-11"))
	want := []string{"08:00", "09:00", "10:00", "11:00", "14:00", "16:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGenerateSlots_Properties(t *testing.T) {
	rules := []domain.OperatingHours{
		{DayOfWeek: 0, StartTime: "07:15", EndTime: "19:00", SlotDurationMinutes: 45},
		{DayOfWeek: 0, StartTime: "06:00", EndTime: "08:00", SlotDurationMinutes: 30},
		{DayOfWeek: 5, StartTime: "08:00", EndTime: "09:00", SlotDurationMinutes: 90},
		{DayOfWeek: 6, StartTime: "10:00", EndTime: "09:00", SlotDurationMinutes: 30},
	}

	start := mustDate(t, "2025-06-01")
	for day := 0; day < 14; day++ {
		date := start.AddDate(0, 0, day)
		slots := GenerateSlots(rules, date)

		for i := 1; i < len(slots); i++ {
			if slots[i-1] >= slots[i] {
				t.Fatalf("%s: slots not strictly increasing: %v", FormatDate(date), slots)
			}
		}

		for _, slot := range slots {
			slotStart, err := ParseClock(slot)
			if err != nil {
				t.Fatalf("generated invalid slot %q: %v", slot, err)
			}
			fits := false
			for _, rule := range rules {
				if rule.DayOfWeek != int(date.Weekday()) {
					continue
				}
				open, _ := ParseClock(rule.StartTime)
				closing, _ := ParseClock(rule.EndTime)
				if slotStart >= open && slotStart+rule.SlotDurationMinutes <= closing && (slotStart-open)%rule.SlotDurationMinutes == 0 {
					fits = true
				}
			}
			if !fits {
				t.Fatalf("%s: slot %s does not fit any rule", FormatDate(date), slot)
			}
		}

		switch date.Weekday() {
		case time.Monday, time.Tuesday, time.Wednesday, time.Thursday:
			if len(slots) != 0 {
				t.Fatalf("%s: expected no slots, got %v", FormatDate(date), slots)
			}
		case time.Friday:
			if len(slots) != 0 {
				t.Fatalf("friday rule is shorter than its slot, got %v", slots)
			}
		case time.Saturday:
			if len(slots) != 0 {
				t.Fatalf("inverted rule must not produce slots, got %v", slots)
			}
		}
	}
}

func TestIsValidSlot(t *testing.T) {
	rules := []domain.OperatingHours{{DayOfWeek: 1, StartTime: "08:00", EndTime: "12:00", SlotDurationMinutes: 120}}
	monday := mustDate(t, "2025-06-09")
	if !IsValidSlot(rules, monday, "10:00") {
		t.Fatalf("expected 10:00 to be valid")
	}
	if IsValidSlot(rules, monday, "09:00") {
		t.Fatalf("expected 09:00 to be invalid")
	}
	if IsValidSlot(rules, monday.AddDate(0, 0, 1), "08:00") {
		t.Fatalf("expected tuesday slot to be invalid")
	}
}

func TestValidateOperatingHours(t *testing.T) {
	tests := []struct {
		name    string
		rules   []domain.OperatingHours
		wantErr bool
	}{
		{name: "valid", rules: []domain.OperatingHours{{DayOfWeek: 6, StartTime: "08:00", EndTime: "17:00", SlotDurationMinutes: 60}}},
		{name: "empty", rules: nil},
		{name: "bad weekday", rules: []domain.OperatingHours{{DayOfWeek: 7, StartTime: "08:00", EndTime: "17:00", SlotDurationMinutes: 60}}, wantErr: true},
		{name: "end before start", rules: []domain.OperatingHours{{DayOfWeek: 1, StartTime: "12:00", EndTime: "08:00", SlotDurationMinutes: 60}}, wantErr: true},
		{name: "equal bounds", rules: []domain.OperatingHours{{DayOfWeek: 1, StartTime: "08:00", EndTime: "08:00", SlotDurationMinutes: 60}}, wantErr: true},
		{name: "bad clock", rules: []domain.OperatingHours{{DayOfWeek: 1, StartTime: "8:00", EndTime: "12:00", SlotDurationMinutes: 60}}, wantErr: true},
		{name: "zero duration", rules: []domain.OperatingHours{{DayOfWeek: 1, StartTime: "08:00", EndTime: "12:00"}}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOperatingHours(tc.rules)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidOperatingHours) {
					t.Fatalf("expected ErrInvalidOperatingHours, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	if minutes, err := ParseClock("23:59"); err != nil || minutes != 23*60+59 {
		t.Fatalf("expected 1439, got %d (%v)", minutes, err)
	}
	for _, value := range []string{"24:00", "12:60", "1200", "ab:cd", ""} {
		if _, err := ParseClock(value); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("expected ErrInvalidClock for %q, got %v", value, err)
		}
	}
}

func TestDayWindow(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	date := time.Date(2025, 6, 10, 15, 30, 0, 0, loc)
	start, end := DayWindow(date)
	if !start.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected window start %v", start)
	}
	if !end.Equal(time.Date(2025, 6, 10, 23, 59, 59, int(999*time.Millisecond), loc)) {
		t.Fatalf("unexpected window end %v", end)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("10/06/2025", time.UTC); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
