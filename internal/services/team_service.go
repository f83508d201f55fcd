package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/scheduling"
)

const maxTeamNameLength = 120

var (
	// ErrTeamInvalidInput signals malformed team data or operating hours.
	ErrTeamInvalidInput = errors.New("team: invalid input")
	// ErrTeamNotFound indicates the team does not exist.
	ErrTeamNotFound = errors.New("team: not found")
	// ErrTeamConflict indicates a team with the same id already exists.
	ErrTeamConflict = errors.New("team: conflict")
)

// TeamServiceDeps bundles collaborators required by the team service.
type TeamServiceDeps struct {
	Teams       repositories.TeamRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type teamService struct {
	teams  repositories.TeamRepository
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

var _ TeamService = (*teamService)(nil)

// NewTeamService constructs the team management service.
func NewTeamService(deps TeamServiceDeps) (TeamService, error) {
	if deps.Teams == nil {
		return nil, errors.New("team service: team repository is required")
	}
	return &teamService{
		teams:  deps.Teams,
		now:    utcClock(deps.Clock),
		newID:  idGeneratorOrDefault(deps.IDGenerator),
		logger: loggerOrNoop(deps.Logger),
	}, nil
}

func (s *teamService) CreateTeam(ctx context.Context, cmd UpsertTeamCommand) (Team, error) {
	team, err := buildTeam(cmd)
	if err != nil {
		return Team{}, err
	}
	team.ID = strings.TrimSpace(cmd.TeamID)
	if team.ID == "" {
		team.ID = s.newID()
	}
	now := s.now()
	team.CreatedAt = now
	team.UpdatedAt = now
	if err := s.teams.Insert(ctx, team); err != nil {
		return Team{}, mapRepositoryError(err, ErrTeamNotFound, ErrTeamConflict)
	}
	s.logger(ctx, "team.created", map[string]any{"teamId": team.ID})
	return team, nil
}

func (s *teamService) UpdateTeam(ctx context.Context, cmd UpsertTeamCommand) (Team, error) {
	teamID := strings.TrimSpace(cmd.TeamID)
	if teamID == "" {
		return Team{}, fmt.Errorf("%w: team id is required", ErrTeamInvalidInput)
	}
	current, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return Team{}, mapRepositoryError(err, ErrTeamNotFound, nil)
	}
	team, err := buildTeam(cmd)
	if err != nil {
		return Team{}, err
	}
	team.ID = teamID
	team.CreatedAt = current.CreatedAt
	team.UpdatedAt = s.now()
	if err := s.teams.Update(ctx, team); err != nil {
		return Team{}, mapRepositoryError(err, ErrTeamNotFound, ErrTeamConflict)
	}
	s.logger(ctx, "team.updated", map[string]any{"teamId": team.ID, "active": team.Active})
	return team, nil
}

func (s *teamService) GetTeam(ctx context.Context, teamID string) (Team, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return Team{}, fmt.Errorf("%w: team id is required", ErrTeamInvalidInput)
	}
	team, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return Team{}, mapRepositoryError(err, ErrTeamNotFound, nil)
	}
	return team, nil
}

func (s *teamService) ListTeams(ctx context.Context, activeOnly bool) ([]Team, error) {
	teams, err := s.teams.List(ctx, activeOnly)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	sort.SliceStable(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func buildTeam(cmd UpsertTeamCommand) (domain.Team, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Team{}, fmt.Errorf("%w: name is required", ErrTeamInvalidInput)
	}
	if len([]rune(name)) > maxTeamNameLength {
		return domain.Team{}, fmt.Errorf("%w: name must be at most %d characters", ErrTeamInvalidInput, maxTeamNameLength)
	}
	if cmd.MaxPartySize < 0 {
		return domain.Team{}, fmt.Errorf("%w: max party size must not be negative", ErrTeamInvalidInput)
	}
	hours := make([]domain.OperatingHours, 0, len(cmd.OperatingHours))
	for _, rule := range cmd.OperatingHours {
		rule.StartTime = strings.TrimSpace(rule.StartTime)
		rule.EndTime = strings.TrimSpace(rule.EndTime)
		hours = append(hours, rule)
	}
	if err := scheduling.ValidateOperatingHours(hours); err != nil {
		return domain.Team{}, fmt.Errorf("%w: %v", ErrTeamInvalidInput, err)
	}
	return domain.Team{
		Name:           name,
		Active:         cmd.Active,
		MaxPartySize:   cmd.MaxPartySize,
		OperatingHours: hours,
	}, nil
}
