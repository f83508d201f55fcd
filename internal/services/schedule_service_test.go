package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

func newScheduleFixture(t *testing.T) (*memStore, ScheduleService) {
	t.Helper()
	store := newMemStore()
	svc, err := NewScheduleService(ScheduleServiceDeps{
		Schedules: store.Schedules(),
		Location:  testLocation,
		Clock:     fixedClock(depositNow),
	})
	if err != nil {
		t.Fatalf("NewScheduleService: %v", err)
	}
	store.putSchedule(domain.Schedule{
		ID:            "sch-1",
		OrderID:       "ord-1",
		UserID:        "user-1",
		TeamID:        "team-a",
		ScheduledDate: mustDate("2026-03-10"),
		TimeSlot:      "09:00",
		Status:        domain.ScheduleStatusPending,
	})
	store.putSchedule(domain.Schedule{
		ID:            "sch-2",
		OrderID:       "ord-2",
		UserID:        "user-2",
		TeamID:        "team-b",
		ScheduledDate: mustDate("2026-03-11"),
		TimeSlot:      "14:00",
		Status:        domain.ScheduleStatusConfirmed,
	})
	return store, svc
}

func TestScheduleLifecycle(t *testing.T) {
	store, svc := newScheduleFixture(t)
	ctx := context.Background()

	confirmed, err := svc.ConfirmSchedule(ctx, "sch-1")
	if err != nil {
		t.Fatalf("ConfirmSchedule: %v", err)
	}
	if confirmed.Status != domain.ScheduleStatusConfirmed || !confirmed.UpdatedAt.Equal(depositNow) {
		t.Fatalf("unexpected confirmed schedule %+v", confirmed)
	}

	if _, err := svc.ConfirmSchedule(ctx, "sch-1"); !errors.Is(err, ErrScheduleInvalidState) {
		t.Fatalf("expected invalid state on second confirm, got %v", err)
	}

	cancelled, err := svc.CancelSchedule(ctx, CancelScheduleCommand{ScheduleID: "sch-1", Actor: customer("user-1")})
	if err != nil {
		t.Fatalf("CancelSchedule: %v", err)
	}
	if cancelled.Status != domain.ScheduleStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if got := store.activeSchedulesAt("team-a", mustDate("2026-03-10"), "09:00"); got != 0 {
		t.Fatalf("slot must be released, %d active", got)
	}
	if _, taken := store.locks[lockKey("team-a", mustDate("2026-03-10"), "09:00")]; taken {
		t.Fatalf("slot lock must be released")
	}

	if _, err := svc.CancelSchedule(ctx, CancelScheduleCommand{ScheduleID: "sch-1", Actor: staff("op-1")}); !errors.Is(err, ErrScheduleInvalidState) {
		t.Fatalf("expected invalid state on second cancel, got %v", err)
	}
}

func TestCompleteSchedule(t *testing.T) {
	store, svc := newScheduleFixture(t)
	ctx := context.Background()

	if _, err := svc.CompleteSchedule(ctx, "sch-1"); !errors.Is(err, ErrScheduleInvalidState) {
		t.Fatalf("expected pending schedule to be rejected, got %v", err)
	}
	if _, err := svc.CompleteSchedule(ctx, "sch-2"); !errors.Is(err, ErrScheduleInvalidState) {
		t.Fatalf("expected completion before the scheduled day to be rejected, got %v", err)
	}

	afternoon := mustDate("2026-03-11").Add(15 * time.Hour)
	later, err := NewScheduleService(ScheduleServiceDeps{
		Schedules: store.Schedules(),
		Location:  testLocation,
		Clock:     fixedClock(afternoon),
	})
	if err != nil {
		t.Fatalf("NewScheduleService: %v", err)
	}
	completed, err := later.CompleteSchedule(ctx, "sch-2")
	if err != nil {
		t.Fatalf("CompleteSchedule: %v", err)
	}
	if completed.Status != domain.ScheduleStatusCompleted || !completed.UpdatedAt.Equal(afternoon) {
		t.Fatalf("unexpected completed schedule %+v", completed)
	}
	if got := store.activeSchedulesAt("team-b", mustDate("2026-03-11"), "14:00"); got != 1 {
		t.Fatalf("completed schedule must keep its slot, %d active", got)
	}
	if _, err := later.CompleteSchedule(ctx, "sch-2"); !errors.Is(err, ErrScheduleInvalidState) {
		t.Fatalf("expected invalid state on second completion, got %v", err)
	}
	if _, err := later.CancelSchedule(ctx, CancelScheduleCommand{ScheduleID: "sch-2", Actor: staff("op-1")}); !errors.Is(err, ErrScheduleInvalidState) {
		t.Fatalf("completed schedule must not be cancellable, got %v", err)
	}
}

func TestCancelScheduleRequiresOwnerOrOperator(t *testing.T) {
	_, svc := newScheduleFixture(t)
	ctx := context.Background()

	if _, err := svc.CancelSchedule(ctx, CancelScheduleCommand{ScheduleID: "sch-1", Actor: customer("user-2")}); !errors.Is(err, ErrSchedulePermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := svc.CancelSchedule(ctx, CancelScheduleCommand{ScheduleID: "sch-1"}); !errors.Is(err, ErrSchedulePermissionDenied) {
		t.Fatalf("expected permission denied without actor, got %v", err)
	}
	if _, err := svc.CancelSchedule(ctx, CancelScheduleCommand{ScheduleID: "sch-1", Actor: staff("op-1")}); err != nil {
		t.Fatalf("staff cancel: %v", err)
	}
}

func TestGetScheduleVisibility(t *testing.T) {
	_, svc := newScheduleFixture(t)
	ctx := context.Background()

	if _, err := svc.GetSchedule(ctx, "sch-1", customer("user-1")); err != nil {
		t.Fatalf("owner GetSchedule: %v", err)
	}
	if _, err := svc.GetSchedule(ctx, "sch-1", customer("user-2")); !errors.Is(err, ErrSchedulePermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := svc.GetSchedule(ctx, "sch-404", staff("op-1")); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListSchedulesFilters(t *testing.T) {
	_, svc := newScheduleFixture(t)
	ctx := context.Background()

	all, err := svc.ListSchedules(ctx, ScheduleFilter{})
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(all))
	}

	byDay, err := svc.ListSchedules(ctx, ScheduleFilter{Date: "2026-03-11"})
	if err != nil {
		t.Fatalf("ListSchedules by day: %v", err)
	}
	if len(byDay) != 1 || byDay[0].ID != "sch-2" {
		t.Fatalf("unexpected day listing %+v", byDay)
	}

	byTeam, err := svc.ListSchedules(ctx, ScheduleFilter{TeamID: "team-a"})
	if err != nil {
		t.Fatalf("ListSchedules by team: %v", err)
	}
	if len(byTeam) != 1 || byTeam[0].ID != "sch-1" {
		t.Fatalf("unexpected team listing %+v", byTeam)
	}

	if _, err := svc.ListSchedules(ctx, ScheduleFilter{Date: "10/03/2026"}); !errors.Is(err, ErrScheduleInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	mine, err := svc.ListForUser(ctx, "user-2", 0)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "sch-2" {
		t.Fatalf("unexpected user listing %+v", mine)
	}
}

func TestUpdateNotesSanitises(t *testing.T) {
	_, svc := newScheduleFixture(t)
	ctx := context.Background()

	updated, err := svc.UpdateNotes(ctx, UpdateScheduleNotesCommand{
		ScheduleID: "sch-2",
		Notes:      "  <script>alert(1)</script>Bring <b>sunscreen</b>  ",
	})
	if err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	if updated.Notes != "Bring sunscreen" {
		t.Fatalf("unexpected notes %q", updated.Notes)
	}
	if updated.Status != domain.ScheduleStatusConfirmed {
		t.Fatalf("notes must not change status, got %s", updated.Status)
	}

	_, err = svc.UpdateNotes(ctx, UpdateScheduleNotesCommand{ScheduleID: "sch-2", Notes: strings.Repeat("a", maxScheduleNotesLength+1)})
	if !errors.Is(err, ErrScheduleInvalidInput) {
		t.Fatalf("expected invalid input for long notes, got %v", err)
	}
}
