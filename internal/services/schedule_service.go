package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/scheduling"
)

const (
	maxScheduleNotesLength   = 2000
	defaultScheduleListLimit = 200
)

var (
	// ErrScheduleInvalidInput signals malformed schedule input.
	ErrScheduleInvalidInput = errors.New("schedule: invalid input")
	// ErrScheduleNotFound indicates the schedule does not exist.
	ErrScheduleNotFound = errors.New("schedule: not found")
	// ErrScheduleInvalidState indicates the transition is not allowed from the current status.
	ErrScheduleInvalidState = errors.New("schedule: invalid state")
	// ErrSchedulePermissionDenied indicates the actor may not act on the schedule.
	ErrSchedulePermissionDenied = errors.New("schedule: permission denied")
)

// ScheduleServiceDeps bundles collaborators required by the schedule service.
type ScheduleServiceDeps struct {
	Schedules repositories.ScheduleRepository
	Location  *time.Location
	// ListLimit caps staff listings.
	ListLimit int
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type scheduleService struct {
	schedules repositories.ScheduleRepository
	loc       *time.Location
	listLimit int
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	policy    *bluemonday.Policy
}

var _ ScheduleService = (*scheduleService)(nil)

// NewScheduleService constructs the schedule lifecycle service.
func NewScheduleService(deps ScheduleServiceDeps) (ScheduleService, error) {
	if deps.Schedules == nil {
		return nil, errors.New("schedule service: schedule repository is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	limit := deps.ListLimit
	if limit <= 0 || limit > defaultScheduleListLimit {
		limit = defaultScheduleListLimit
	}
	return &scheduleService{
		schedules: deps.Schedules,
		loc:       loc,
		listLimit: limit,
		now:       utcClock(deps.Clock),
		logger:    loggerOrNoop(deps.Logger),
		policy:    bluemonday.StrictPolicy(),
	}, nil
}

func (s *scheduleService) GetSchedule(ctx context.Context, scheduleID string, actor *Actor) (Schedule, error) {
	schedule, err := s.find(ctx, scheduleID)
	if err != nil {
		return Schedule{}, err
	}
	if !ownerOrOperator(actor, schedule.UserID) {
		return Schedule{}, ErrSchedulePermissionDenied
	}
	return schedule, nil
}

func (s *scheduleService) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error) {
	query := repositories.ScheduleListFilter{
		TeamID: strings.TrimSpace(filter.TeamID),
		Limit:  s.limit(filter.Limit),
	}
	if date := strings.TrimSpace(filter.Date); date != "" {
		day, err := scheduling.ParseDate(date, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScheduleInvalidInput, err)
		}
		start, end := scheduling.DayWindow(day)
		query.From = &start
		query.To = &end
	}
	list, err := s.schedules.List(ctx, query)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	return list, nil
}

func (s *scheduleService) ListForUser(ctx context.Context, userID string, limit int) ([]Schedule, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrScheduleInvalidInput)
	}
	list, err := s.schedules.ListByUser(ctx, userID, s.limit(limit))
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	return list, nil
}

// ConfirmSchedule moves a PENDING schedule to CONFIRMED.
func (s *scheduleService) ConfirmSchedule(ctx context.Context, scheduleID string) (Schedule, error) {
	updated, err := s.mutate(ctx, scheduleID, func(schedule *domain.Schedule) error {
		if schedule.Status != domain.ScheduleStatusPending {
			return fmt.Errorf("%w: schedule is %s", ErrScheduleInvalidState, schedule.Status)
		}
		schedule.Status = domain.ScheduleStatusConfirmed
		schedule.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	s.logger(ctx, "schedule.confirmed", map[string]any{"scheduleId": updated.ID, "orderId": updated.OrderID})
	return updated, nil
}

// CompleteSchedule marks a CONFIRMED schedule as carried out. It cannot happen before the scheduled day
// starts in the booking time zone. The slot stays held.
func (s *scheduleService) CompleteSchedule(ctx context.Context, scheduleID string) (Schedule, error) {
	now := s.now()
	updated, err := s.mutate(ctx, scheduleID, func(schedule *domain.Schedule) error {
		if schedule.Status != domain.ScheduleStatusConfirmed {
			return fmt.Errorf("%w: schedule is %s", ErrScheduleInvalidState, schedule.Status)
		}
		day := schedule.ScheduledDate.In(s.loc)
		if now.Before(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)) {
			return fmt.Errorf("%w: schedule is on %s", ErrScheduleInvalidState, scheduling.FormatDate(day))
		}
		schedule.Status = domain.ScheduleStatusCompleted
		schedule.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	s.logger(ctx, "schedule.completed", map[string]any{"scheduleId": updated.ID, "orderId": updated.OrderID})
	return updated, nil
}

// CancelSchedule cancels a PENDING or CONFIRMED schedule; the repository releases the slot.
func (s *scheduleService) CancelSchedule(ctx context.Context, cmd CancelScheduleCommand) (Schedule, error) {
	if cmd.Actor == nil || actorID(cmd.Actor) == "" {
		return Schedule{}, ErrSchedulePermissionDenied
	}
	// Owner and placement are immutable, so the check can run outside the transaction.
	current, err := s.find(ctx, cmd.ScheduleID)
	if err != nil {
		return Schedule{}, err
	}
	if !ownerOrOperator(cmd.Actor, current.UserID) {
		return Schedule{}, ErrSchedulePermissionDenied
	}
	updated, err := s.mutate(ctx, current.ID, func(schedule *domain.Schedule) error {
		switch schedule.Status {
		case domain.ScheduleStatusCompleted, domain.ScheduleStatusCancelled:
			return fmt.Errorf("%w: schedule is %s", ErrScheduleInvalidState, schedule.Status)
		}
		schedule.Status = domain.ScheduleStatusCancelled
		schedule.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return Schedule{}, err
	}
	s.logger(ctx, "schedule.cancelled", map[string]any{
		"scheduleId": updated.ID,
		"orderId":    updated.OrderID,
		"actorId":    actorID(cmd.Actor),
	})
	return updated, nil
}

// UpdateNotes replaces the notes in any status.
func (s *scheduleService) UpdateNotes(ctx context.Context, cmd UpdateScheduleNotesCommand) (Schedule, error) {
	notes := strings.TrimSpace(s.policy.Sanitize(cmd.Notes))
	if len([]rune(notes)) > maxScheduleNotesLength {
		return Schedule{}, fmt.Errorf("%w: notes must be at most %d characters", ErrScheduleInvalidInput, maxScheduleNotesLength)
	}
	return s.mutate(ctx, cmd.ScheduleID, func(schedule *domain.Schedule) error {
		schedule.Notes = notes
		schedule.UpdatedAt = s.now()
		return nil
	})
}

func (s *scheduleService) find(ctx context.Context, scheduleID string) (Schedule, error) {
	scheduleID = strings.TrimSpace(scheduleID)
	if scheduleID == "" {
		return Schedule{}, fmt.Errorf("%w: schedule id is required", ErrScheduleInvalidInput)
	}
	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return Schedule{}, mapRepositoryError(err, ErrScheduleNotFound, nil)
	}
	return schedule, nil
}

func (s *scheduleService) mutate(ctx context.Context, scheduleID string, fn func(*domain.Schedule) error) (Schedule, error) {
	scheduleID = strings.TrimSpace(scheduleID)
	if scheduleID == "" {
		return Schedule{}, fmt.Errorf("%w: schedule id is required", ErrScheduleInvalidInput)
	}
	updated, err := s.schedules.Mutate(ctx, scheduleID, fn)
	if err != nil {
		if errors.Is(err, ErrScheduleInvalidState) || errors.Is(err, ErrScheduleInvalidInput) {
			return Schedule{}, err
		}
		return Schedule{}, mapRepositoryError(err, ErrScheduleNotFound, nil)
	}
	return updated, nil
}

func (s *scheduleService) limit(requested int) int {
	if requested <= 0 || requested > s.listLimit {
		return s.listLimit
	}
	return requested
}
