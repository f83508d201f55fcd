package scheduling

import (
	"errors"
	"testing"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

func TestGroupItems_CollapsesSameSlot(t *testing.T) {
	items := []domain.OrderItem{
		{ServiceID: "svc_boat", ServiceName: "Boat tour", ScheduledDate: "2025-06-10", TeamID: "T1", TimeSlot: "10:00"},
		{ServiceID: "svc_falls", ServiceName: "Falls trail", ScheduledDate: "2025-06-10", TeamID: "T1", TimeSlot: "10:00"},
	}

	groups, err := GroupItems(items, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	group := groups[0]
	if group.TeamID != "T1" || group.TimeSlot != "10:00" || FormatDate(group.Date) != "2025-06-10" {
		t.Fatalf("unexpected group header %+v", group)
	}
	if len(group.Services) != 2 || group.Services[0].ServiceID != "svc_boat" || group.Services[1].ServiceID != "svc_falls" {
		t.Fatalf("unexpected services %+v", group.Services)
	}
}

func TestGroupItems_SplitsDistinctKeysInFirstSeenOrder(t *testing.T) {
	items := []domain.OrderItem{
		{ServiceID: "a", ScheduledDate: "2025-06-11", TeamID: "T1", TimeSlot: "08:00"},
		{ServiceID: "b", ScheduledDate: "2025-06-10", TeamID: "T1", TimeSlot: "08:00"},
		{ServiceID: "c", ScheduledDate: "2025-06-11", TeamID: "T1", TimeSlot: "08:00"},
		{ServiceID: "d", ScheduledDate: "2025-06-11", TeamID: "T2", TimeSlot: "08:00"},
	}

	groups, err := GroupItems(items, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected three groups, got %d", len(groups))
	}
	want := []string{"2025-06-11|T1|08:00", "2025-06-10|T1|08:00", "2025-06-11|T2|08:00"}
	for i, key := range want {
		if groups[i].Key.String() != key {
			t.Fatalf("group %d: expected key %s, got %s", i, key, groups[i].Key.String())
		}
	}
	if len(groups[0].Services) != 2 {
		t.Fatalf("expected first group to collect two services, got %d", len(groups[0].Services))
	}
}

func TestGroupItems_InvalidDate(t *testing.T) {
	_, err := GroupItems([]domain.OrderItem{{ScheduledDate: "not-a-date", TeamID: "T1", TimeSlot: "08:00"}}, time.UTC)
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
