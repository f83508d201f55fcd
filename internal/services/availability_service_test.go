package services

import (
	"context"
	"errors"
	"slices"
	"testing"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

func newAvailabilityFixture(t *testing.T) (*memStore, AvailabilityService) {
	t.Helper()
	store := newMemStore()
	seedCatalog(store)
	store.putTeam(domain.Team{ID: "team-b", Name: "Team B", Active: true, OperatingHours: []domain.OperatingHours{
		{DayOfWeek: 2, StartTime: "14:00", EndTime: "16:00", SlotDurationMinutes: 60},
	}})
	svc, err := NewAvailabilityService(AvailabilityServiceDeps{
		Teams:     store.Teams(),
		Schedules: store.Schedules(),
		Location:  testLocation,
	})
	if err != nil {
		t.Fatalf("NewAvailabilityService: %v", err)
	}
	return store, svc
}

func bookedSchedule(id, team, date, slot string, status domain.ScheduleStatus) domain.Schedule {
	return domain.Schedule{
		ID:            id,
		OrderID:       "ord-" + id,
		UserID:        "user-1",
		TeamID:        team,
		ScheduledDate: mustDate(date),
		TimeSlot:      slot,
		Status:        status,
	}
}

func TestGetAvailabilityMarksOccupiedSlots(t *testing.T) {
	store, svc := newAvailabilityFixture(t)
	store.putSchedule(bookedSchedule("s1", "team-a", "2026-03-10", "09:00", domain.ScheduleStatusConfirmed))
	store.putSchedule(bookedSchedule("s2", "team-a", "2026-03-10", "10:00", domain.ScheduleStatusCancelled))
	store.putSchedule(bookedSchedule("s3", "team-a", "2026-03-11", "08:00", domain.ScheduleStatusPending))

	result, err := svc.GetAvailability(context.Background(), "2026-03-10")
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if result.Date != "2026-03-10" || len(result.Teams) != 2 {
		t.Fatalf("expected two active teams, got %+v", result)
	}
	var teamA TeamAvailability
	for _, team := range result.Teams {
		if team.TeamID == "team-a" {
			teamA = team
		}
		if team.TeamID == "team-off" {
			t.Fatalf("inactive team must not be listed")
		}
	}
	if !slices.Equal(teamA.AllSlots, []string{"08:00", "09:00", "10:00", "11:00"}) {
		t.Fatalf("unexpected slots %v", teamA.AllSlots)
	}
	if !slices.Equal(teamA.OccupiedSlots, []string{"09:00"}) {
		t.Fatalf("expected only 09:00 occupied, got %v", teamA.OccupiedSlots)
	}
	if !slices.Equal(teamA.AvailableSlots, []string{"08:00", "10:00", "11:00"}) {
		t.Fatalf("unexpected available slots %v", teamA.AvailableSlots)
	}
}

func TestTeamSlotsKeepsOffRuleBookings(t *testing.T) {
	store, svc := newAvailabilityFixture(t)
	// Booked before the operating hours were narrowed.
	store.putSchedule(bookedSchedule("s1", "team-b", "2026-03-10", "17:00", domain.ScheduleStatusConfirmed))

	view, err := svc.TeamSlots(context.Background(), "team-b", "2026-03-10")
	if err != nil {
		t.Fatalf("TeamSlots: %v", err)
	}
	if !slices.Equal(view.AvailableSlots, []string{"14:00", "15:00"}) || !slices.Equal(view.OccupiedSlots, []string{"17:00"}) {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestTeamSlotsClosedDay(t *testing.T) {
	_, svc := newAvailabilityFixture(t)

	view, err := svc.TeamSlots(context.Background(), "team-a", "2026-03-12")
	if err != nil {
		t.Fatalf("TeamSlots: %v", err)
	}
	if len(view.AllSlots) != 0 || len(view.AvailableSlots) != 0 {
		t.Fatalf("expected no slots on a closed day, got %+v", view)
	}
}

func TestTeamSlotsErrors(t *testing.T) {
	cases := []struct {
		name   string
		teamID string
		date   string
		want   error
	}{
		{"missing team", "", "2026-03-10", ErrAvailabilityInvalidInput},
		{"bad date", "team-a", "2026-13-10", ErrAvailabilityInvalidInput},
		{"unknown team", "team-x", "2026-03-10", ErrAvailabilityTeamNotFound},
		{"inactive team", "team-off", "2026-03-10", ErrAvailabilityTeamNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, svc := newAvailabilityFixture(t)
			if _, err := svc.TeamSlots(context.Background(), tc.teamID, tc.date); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIsSlotTaken(t *testing.T) {
	store, svc := newAvailabilityFixture(t)
	store.putSchedule(bookedSchedule("s1", "team-a", "2026-03-10", "09:00", domain.ScheduleStatusPending))
	store.putSchedule(bookedSchedule("s2", "team-a", "2026-03-10", "10:00", domain.ScheduleStatusCancelled))
	ctx := context.Background()
	day := mustDate("2026-03-10")

	cases := []struct {
		team, slot string
		want       bool
	}{
		{"team-a", "09:00", true},
		{"team-a", "10:00", false},
		{"team-b", "09:00", false},
		{"team-a", "11:00", false},
	}
	for _, tc := range cases {
		taken, err := svc.IsSlotTaken(ctx, tc.team, day, tc.slot)
		if err != nil {
			t.Fatalf("IsSlotTaken(%s %s): %v", tc.team, tc.slot, err)
		}
		if taken != tc.want {
			t.Fatalf("IsSlotTaken(%s %s) = %v, want %v", tc.team, tc.slot, taken, tc.want)
		}
	}
	if _, err := svc.IsSlotTaken(ctx, "team-a", day, ""); !errors.Is(err, ErrAvailabilityInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
