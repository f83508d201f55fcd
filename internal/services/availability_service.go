package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/scheduling"
)

var (
	// ErrAvailabilityInvalidInput indicates an unparseable date or missing identifier.
	ErrAvailabilityInvalidInput = errors.New("availability: invalid input")
	// ErrAvailabilityTeamNotFound indicates the requested team does not exist or is inactive.
	ErrAvailabilityTeamNotFound = errors.New("availability: team not found")
)

// AvailabilityServiceDeps bundles collaborators required by the availability service.
type AvailabilityServiceDeps struct {
	Teams     repositories.TeamRepository
	Schedules repositories.ScheduleRepository
	// Location is the business time zone used to interpret calendar dates.
	Location *time.Location
}

type availabilityService struct {
	teams     repositories.TeamRepository
	schedules repositories.ScheduleRepository
	loc       *time.Location
}

var _ AvailabilityService = (*availabilityService)(nil)

// NewAvailabilityService constructs the availability aggregator and conflict detector.
func NewAvailabilityService(deps AvailabilityServiceDeps) (AvailabilityService, error) {
	if deps.Teams == nil {
		return nil, errors.New("availability service: team repository is required")
	}
	if deps.Schedules == nil {
		return nil, errors.New("availability service: schedule repository is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &availabilityService{teams: deps.Teams, schedules: deps.Schedules, loc: loc}, nil
}

func (s *availabilityService) GetAvailability(ctx context.Context, date string) (AvailabilityResult, error) {
	day, err := scheduling.ParseDate(date, s.loc)
	if err != nil {
		return AvailabilityResult{}, fmt.Errorf("%w: %v", ErrAvailabilityInvalidInput, err)
	}

	teams, err := s.teams.List(ctx, true)
	if err != nil {
		return AvailabilityResult{}, mapRepositoryError(err, nil, nil)
	}
	start, end := scheduling.DayWindow(day)
	schedules, err := s.schedules.ListByDay(ctx, start, end)
	if err != nil {
		return AvailabilityResult{}, mapRepositoryError(err, nil, nil)
	}

	occupiedByTeam := make(map[string]map[string]struct{}, len(teams))
	for _, schedule := range schedules {
		if !schedule.Status.Active() {
			continue
		}
		slots, ok := occupiedByTeam[schedule.TeamID]
		if !ok {
			slots = make(map[string]struct{})
			occupiedByTeam[schedule.TeamID] = slots
		}
		slots[schedule.TimeSlot] = struct{}{}
	}

	result := AvailabilityResult{Date: scheduling.FormatDate(day), Teams: make([]TeamAvailability, 0, len(teams))}
	for _, team := range teams {
		if !team.Active {
			continue
		}
		result.Teams = append(result.Teams, teamAvailability(team, day, occupiedByTeam[team.ID]))
	}
	return result, nil
}

func (s *availabilityService) TeamSlots(ctx context.Context, teamID string, date string) (TeamAvailability, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return TeamAvailability{}, fmt.Errorf("%w: team id is required", ErrAvailabilityInvalidInput)
	}
	day, err := scheduling.ParseDate(date, s.loc)
	if err != nil {
		return TeamAvailability{}, fmt.Errorf("%w: %v", ErrAvailabilityInvalidInput, err)
	}

	team, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return TeamAvailability{}, mapRepositoryError(err, ErrAvailabilityTeamNotFound, nil)
	}
	if !team.Active {
		return TeamAvailability{}, fmt.Errorf("%w: %s", ErrAvailabilityTeamNotFound, teamID)
	}
	start, end := scheduling.DayWindow(day)
	schedules, err := s.schedules.ListByTeamDay(ctx, teamID, start, end)
	if err != nil {
		return TeamAvailability{}, mapRepositoryError(err, nil, nil)
	}
	occupied := make(map[string]struct{})
	for _, schedule := range schedules {
		if schedule.TeamID == teamID && schedule.Status.Active() {
			occupied[schedule.TimeSlot] = struct{}{}
		}
	}
	return teamAvailability(team, day, occupied), nil
}

func (s *availabilityService) IsSlotTaken(ctx context.Context, teamID string, date time.Time, slot string) (bool, error) {
	teamID = strings.TrimSpace(teamID)
	slot = strings.TrimSpace(slot)
	if teamID == "" || slot == "" {
		return false, fmt.Errorf("%w: team and slot are required", ErrAvailabilityInvalidInput)
	}
	start, end := scheduling.DayWindow(date.In(s.loc))
	schedules, err := s.schedules.ListByTeamDay(ctx, teamID, start, end)
	if err != nil {
		return false, mapRepositoryError(err, nil, nil)
	}
	for _, schedule := range schedules {
		if schedule.TimeSlot == slot && schedule.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func teamAvailability(team domain.Team, day time.Time, occupied map[string]struct{}) TeamAvailability {
	all := scheduling.GenerateSlots(team.OperatingHours, day)
	view := TeamAvailability{
		TeamID:         team.ID,
		TeamName:       team.Name,
		AllSlots:       all,
		AvailableSlots: make([]string, 0, len(all)),
		OccupiedSlots:  make([]string, 0, len(occupied)),
	}
	for _, slot := range all {
		if _, taken := occupied[slot]; taken {
			view.OccupiedSlots = append(view.OccupiedSlots, slot)
			continue
		}
		view.AvailableSlots = append(view.AvailableSlots, slot)
	}
	// Bookings on slots that no longer match the rules still show as occupied.
	for slot := range occupied {
		if !slices.Contains(all, slot) {
			view.OccupiedSlots = append(view.OccupiedSlots, slot)
		}
	}
	slices.Sort(view.OccupiedSlots)
	return view
}
