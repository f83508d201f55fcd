package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

const (
	defaultScheduleListLimit = 200
	maxScheduleListLimit     = 200
)

// ScheduleRepository reads schedules and applies lifecycle mutations. Schedules are only created by
// BookingRepository.ConfirmDeposit.
type ScheduleRepository struct {
	provider  *pfirestore.Provider
	schedules *pfirestore.Collection[scheduleDocument]
	locks     *pfirestore.Collection[slotLockDocument]
}

var _ repositories.ScheduleRepository = (*ScheduleRepository)(nil)

// NewScheduleRepository constructs a Firestore-backed schedule repository.
func NewScheduleRepository(provider *pfirestore.Provider) (*ScheduleRepository, error) {
	if provider == nil {
		return nil, errors.New("schedule repository requires firestore provider")
	}
	return &ScheduleRepository{
		provider:  provider,
		schedules: pfirestore.NewCollection[scheduleDocument](provider, schedulesCollection),
		locks:     pfirestore.NewCollection[slotLockDocument](provider, slotLocksCollection),
	}, nil
}

func (r *ScheduleRepository) FindByID(ctx context.Context, scheduleID string) (domain.Schedule, error) {
	if r == nil || r.schedules == nil {
		return domain.Schedule{}, errors.New("schedule repository not initialised")
	}
	doc, err := r.schedules.Get(ctx, strings.TrimSpace(scheduleID))
	if err != nil {
		return domain.Schedule{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByDay issues a single range query on scheduledDate.
func (r *ScheduleRepository) ListByDay(ctx context.Context, start, end time.Time) ([]domain.Schedule, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("scheduledDate", ">=", start).Where("scheduledDate", "<=", end).OrderBy("scheduledDate", firestore.Asc)
	})
}

func (r *ScheduleRepository) ListByTeamDay(ctx context.Context, teamID string, start, end time.Time) ([]domain.Schedule, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("teamId", "==", strings.TrimSpace(teamID)).
			Where("scheduledDate", ">=", start).
			Where("scheduledDate", "<=", end)
	})
}

func (r *ScheduleRepository) List(ctx context.Context, filter repositories.ScheduleListFilter) ([]domain.Schedule, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultScheduleListLimit
	}
	if limit > maxScheduleListLimit {
		limit = maxScheduleListLimit
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		if teamID := strings.TrimSpace(filter.TeamID); teamID != "" {
			q = q.Where("teamId", "==", teamID)
		}
		if filter.From != nil {
			q = q.Where("scheduledDate", ">=", *filter.From)
		}
		if filter.To != nil {
			q = q.Where("scheduledDate", "<=", *filter.To)
		}
		return q.OrderBy("scheduledDate", firestore.Asc).Limit(limit)
	})
}

func (r *ScheduleRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Schedule, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", strings.TrimSpace(orderID))
	})
}

// ListByUser returns the user's schedules, most recent date first.
func (r *ScheduleRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Schedule, error) {
	if limit <= 0 || limit > maxScheduleListLimit {
		limit = maxScheduleListLimit
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).OrderBy("scheduledDate", firestore.Desc).Limit(limit)
	})
}

// Mutate applies fn inside a transaction. When fn moves an active schedule to CANCELLED, the slot lock
// owned by the schedule is deleted in the same transaction.
func (r *ScheduleRepository) Mutate(ctx context.Context, scheduleID string, fn func(*domain.Schedule) error) (domain.Schedule, error) {
	if r == nil || r.provider == nil {
		return domain.Schedule{}, errors.New("schedule repository not initialised")
	}
	if fn == nil {
		return domain.Schedule{}, errors.New("schedule mutate: function is required")
	}
	scheduleID = strings.TrimSpace(scheduleID)

	var updated domain.Schedule
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.schedules.Ref(ctx, scheduleID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeSnapshot[scheduleDocument](snap, "schedule")
		if err != nil {
			return err
		}

		lockRef, err := r.locks.Ref(ctx, current.lockID())
		if err != nil {
			return err
		}
		ownsLock := false
		lockSnap, err := tx.Get(lockRef)
		switch {
		case err == nil:
			lock, err := decodeSnapshot[slotLockDocument](lockSnap, "slot lock")
			if err != nil {
				return err
			}
			ownsLock = lock.ScheduleID == scheduleID
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}

		schedule := current.toDomain(scheduleID)
		wasActive := schedule.Status.Active()
		if err := fn(&schedule); err != nil {
			return err
		}
		// Identity and placement are immutable.
		schedule.ID = scheduleID
		schedule.OrderID = current.OrderID
		schedule.TeamID = current.TeamID
		schedule.ScheduledDate = current.ScheduledDate
		schedule.TimeSlot = current.TimeSlot

		next := newScheduleDocument(schedule)
		next.CreatedAt = current.CreatedAt
		next.Day = current.Day
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		if wasActive && !schedule.Status.Active() && ownsLock {
			if err := tx.Delete(lockRef); err != nil {
				return err
			}
		}
		updated = next.toDomain(scheduleID)
		return nil
	})
	if err != nil {
		return domain.Schedule{}, wrapBookingError("schedules.mutate", err)
	}
	return updated, nil
}

func (r *ScheduleRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Schedule, error) {
	if r == nil || r.schedules == nil {
		return nil, errors.New("schedule repository not initialised")
	}
	docs, err := r.schedules.Query(ctx, build)
	if err != nil {
		return nil, fmt.Errorf("schedule query: %w", err)
	}
	schedules := make([]domain.Schedule, 0, len(docs))
	for _, doc := range docs {
		schedules = append(schedules, doc.Data.toDomain(doc.ID))
	}
	return schedules, nil
}
