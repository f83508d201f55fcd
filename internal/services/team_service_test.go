package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

func newTeamFixture(t *testing.T) (*memStore, TeamService) {
	t.Helper()
	store := newMemStore()
	svc, err := NewTeamService(TeamServiceDeps{
		Teams:       store.Teams(),
		Clock:       fixedClock(depositNow),
		IDGenerator: sequentialIDs("team"),
	})
	if err != nil {
		t.Fatalf("NewTeamService: %v", err)
	}
	return store, svc
}

func TestCreateTeamNormalisesAndStores(t *testing.T) {
	store, svc := newTeamFixture(t)

	team, err := svc.CreateTeam(context.Background(), UpsertTeamCommand{
		Name:         "  Equipe Norte ",
		Active:       true,
		MaxPartySize: 10,
		OperatingHours: []domain.OperatingHours{
			{DayOfWeek: 2, StartTime: " 08:00", EndTime: "12:00 ", SlotDurationMinutes: 60},
		},
	})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if team.ID != "team-001" || team.Name != "Equipe Norte" {
		t.Fatalf("unexpected team %+v", team)
	}
	if team.OperatingHours[0].StartTime != "08:00" || team.OperatingHours[0].EndTime != "12:00" {
		t.Fatalf("operating hours must be trimmed, got %+v", team.OperatingHours)
	}
	if !team.CreatedAt.Equal(depositNow) {
		t.Fatalf("expected CreatedAt %v, got %v", depositNow, team.CreatedAt)
	}
	if _, err := store.Teams().FindByID(context.Background(), "team-001"); err != nil {
		t.Fatalf("team was not stored: %v", err)
	}
}

func TestCreateTeamValidation(t *testing.T) {
	hours := func(start, end string, minutes int) []domain.OperatingHours {
		return []domain.OperatingHours{{DayOfWeek: 1, StartTime: start, EndTime: end, SlotDurationMinutes: minutes}}
	}
	cases := []struct {
		name string
		cmd  UpsertTeamCommand
	}{
		{"empty name", UpsertTeamCommand{Name: "   "}},
		{"long name", UpsertTeamCommand{Name: strings.Repeat("n", maxTeamNameLength+1)}},
		{"negative party", UpsertTeamCommand{Name: "A", MaxPartySize: -1}},
		{"end before start", UpsertTeamCommand{Name: "A", OperatingHours: hours("12:00", "08:00", 60)}},
		{"bad clock", UpsertTeamCommand{Name: "A", OperatingHours: hours("8h", "12:00", 60)}},
		{"zero duration", UpsertTeamCommand{Name: "A", OperatingHours: hours("08:00", "12:00", 0)}},
		{"bad weekday", UpsertTeamCommand{Name: "A", OperatingHours: []domain.OperatingHours{{DayOfWeek: 7, StartTime: "08:00", EndTime: "12:00", SlotDurationMinutes: 60}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, svc := newTeamFixture(t)
			if _, err := svc.CreateTeam(context.Background(), tc.cmd); !errors.Is(err, ErrTeamInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCreateTeamDuplicateID(t *testing.T) {
	_, svc := newTeamFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateTeam(ctx, UpsertTeamCommand{TeamID: "team-a", Name: "A"}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if _, err := svc.CreateTeam(ctx, UpsertTeamCommand{TeamID: "team-a", Name: "B"}); !errors.Is(err, ErrTeamConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateTeamKeepsCreation(t *testing.T) {
	store, svc := newTeamFixture(t)
	created := depositNow.AddDate(0, -1, 0)
	store.putTeam(domain.Team{ID: "team-a", Name: "A", Active: true, CreatedAt: created})
	ctx := context.Background()

	updated, err := svc.UpdateTeam(ctx, UpsertTeamCommand{TeamID: "team-a", Name: "A renamed", Active: false})
	if err != nil {
		t.Fatalf("UpdateTeam: %v", err)
	}
	if updated.Name != "A renamed" || updated.Active || !updated.CreatedAt.Equal(created) || !updated.UpdatedAt.Equal(depositNow) {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := svc.UpdateTeam(ctx, UpsertTeamCommand{TeamID: "team-x", Name: "X"}); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.UpdateTeam(ctx, UpsertTeamCommand{Name: "X"}); !errors.Is(err, ErrTeamInvalidInput) {
		t.Fatalf("expected invalid input without id, got %v", err)
	}
}

func TestListTeamsSortedByName(t *testing.T) {
	store, svc := newTeamFixture(t)
	store.putTeam(domain.Team{ID: "t1", Name: "Zeta", Active: true})
	store.putTeam(domain.Team{ID: "t2", Name: "Alfa", Active: true})
	store.putTeam(domain.Team{ID: "t3", Name: "Beta", Active: false})
	ctx := context.Background()

	active, err := svc.ListTeams(ctx, true)
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(active) != 2 || active[0].Name != "Alfa" || active[1].Name != "Zeta" {
		t.Fatalf("unexpected active teams %+v", active)
	}
	all, err := svc.ListTeams(ctx, false)
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 teams, got %d", len(all))
	}
	if _, err := svc.GetTeam(ctx, "t404"); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
