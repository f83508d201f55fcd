package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// BookingRepository runs the multi-document order transitions inside Firestore transactions.
//
// Slot exclusivity is enforced with a deterministic slotLocks/{team_date_slot} document written next
// to every schedule: two transactions that book the same slot both read the lock, so Firestore aborts
// and retries the loser, which then observes the lock and fails with a slot conflict.
type BookingRepository struct {
	provider  *pfirestore.Provider
	orders    *pfirestore.Collection[orderDocument]
	schedules *pfirestore.Collection[scheduleDocument]
	locks     *pfirestore.Collection[slotLockDocument]
	txOpts    []pfirestore.TxOption
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository requires firestore provider")
	}
	return &BookingRepository{
		provider:  provider,
		orders:    pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		schedules: pfirestore.NewCollection[scheduleDocument](provider, schedulesCollection),
		locks:     pfirestore.NewCollection[slotLockDocument](provider, slotLocksCollection),
		txOpts:    opts,
	}, nil
}

// ConfirmDeposit moves a PENDING order to DEPOSIT_PAID, stores the deposit payment and creates one
// schedule plus slot lock per draft. Nothing is written when any slot is taken.
func (r *BookingRepository) ConfirmDeposit(ctx context.Context, req repositories.DepositCommit) (repositories.DepositCommitResult, error) {
	if r == nil || r.provider == nil {
		return repositories.DepositCommitResult{}, errors.New("booking repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.DepositCommitResult{}, errors.New("confirm deposit: order id is required")
	}
	if strings.TrimSpace(req.Payment.ID) == "" {
		return repositories.DepositCommitResult{}, errors.New("confirm deposit: payment id is required")
	}
	for _, draft := range req.Schedules {
		if strings.TrimSpace(draft.ID) == "" {
			return repositories.DepositCommitResult{}, errors.New("confirm deposit: schedule id is required")
		}
	}
	now := req.Now.UTC()

	var result repositories.DepositCommitResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.DepositCommitResult{}

		orderRef, order, err := r.readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if domain.OrderStatus(order.Status) != domain.OrderStatusPending {
			result.AlreadyProcessed = true
			result.Order = order.toDomain(orderID)
			return nil
		}

		lockRefs := make([]*firestore.DocumentRef, len(req.Schedules))
		for i, draft := range req.Schedules {
			day := draft.Date.Format(dateLayout)
			lockRef, err := r.locks.Ref(ctx, slotLockID(draft.TeamID, day, draft.TimeSlot))
			if err != nil {
				return err
			}
			if _, err := tx.Get(lockRef); err == nil {
				return repositories.NewSlotConflict(draft.TeamID, day, draft.TimeSlot)
			} else if status.Code(err) != codes.NotFound {
				return err
			}
			lockRefs[i] = lockRef

			taken, err := r.slotHeldBySchedule(ctx, tx, draft.TeamID, draft.Date, draft.TimeSlot)
			if err != nil {
				return err
			}
			if taken {
				return repositories.NewSlotConflict(draft.TeamID, day, draft.TimeSlot)
			}
		}

		paymentsColl := orderRef.Collection(paymentsCollection)
		paymentRef := paymentsColl.Doc(req.Payment.ID)
		payment := req.Payment
		payment.OrderID = orderID
		payment.Type = domain.PaymentTypeDeposit
		payment.Status = domain.PaymentStatusCompleted
		payment.CreatedAt = now
		if txID := strings.TrimSpace(payment.TransactionID); txID != "" {
			existing, err := findPaymentInTx(tx, paymentsColl, txID)
			if err != nil {
				return err
			}
			if existing != nil {
				paymentRef = existing.Ref
				payment.ID = existing.Ref.ID
				payment.CreatedAt = existing.doc.CreatedAt
				if payment.PaymentLink == "" {
					payment.PaymentLink = existing.doc.PaymentLink
				}
			}
		}
		payment.UpdatedAt = now

		order.Status = string(domain.OrderStatusDepositPaid)
		order.DepositPaidAt = &now
		order.UpdatedAt = now
		if err := tx.Set(orderRef, order); err != nil {
			return err
		}
		if err := tx.Set(paymentRef, newPaymentDocument(payment)); err != nil {
			return err
		}

		schedules := make([]domain.Schedule, 0, len(req.Schedules))
		for i, draft := range req.Schedules {
			schedule := domain.Schedule{
				ID:            draft.ID,
				OrderID:       orderID,
				UserID:        order.UserID,
				TeamID:        draft.TeamID,
				ScheduledDate: draft.Date,
				TimeSlot:      draft.TimeSlot,
				Status:        domain.ScheduleStatusPending,
				PartySize:     draft.PartySize,
				Services:      draft.Services,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			scheduleRef, err := r.schedules.Ref(ctx, schedule.ID)
			if err != nil {
				return err
			}
			doc := newScheduleDocument(schedule)
			if err := tx.Create(scheduleRef, doc); err != nil {
				return err
			}
			if err := tx.Create(lockRefs[i], slotLockDocument{
				ScheduleID: schedule.ID,
				OrderID:    orderID,
				TeamID:     doc.TeamID,
				Day:        doc.Day,
				TimeSlot:   doc.TimeSlot,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
			schedules = append(schedules, doc.toDomain(schedule.ID))
		}

		result.Order = order.toDomain(orderID)
		result.Payment = newPaymentDocument(payment).toDomain(payment.ID)
		result.Schedules = schedules
		return nil
	}, r.txOpts...)
	if err != nil {
		return repositories.DepositCommitResult{}, wrapBookingError("booking.confirmDeposit", err)
	}
	return result, nil
}

// CompleteFinalPayment settles the remainder: the FINAL payment becomes COMPLETED and the order COMPLETED.
func (r *BookingRepository) CompleteFinalPayment(ctx context.Context, req repositories.FinalPaymentCommit) (repositories.FinalPaymentCommitResult, error) {
	if r == nil || r.provider == nil {
		return repositories.FinalPaymentCommitResult{}, errors.New("booking repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.FinalPaymentCommitResult{}, errors.New("complete final payment: order id is required")
	}
	now := req.Now.UTC()

	var result repositories.FinalPaymentCommitResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.FinalPaymentCommitResult{}

		orderRef, order, err := r.readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		paymentsColl := orderRef.Collection(paymentsCollection)
		var existing *paymentSnapshot
		if txID := strings.TrimSpace(req.Payment.TransactionID); txID != "" {
			existing, err = findPaymentInTx(tx, paymentsColl, txID)
			if err != nil {
				return err
			}
		}
		if existing == nil && strings.TrimSpace(req.Payment.ID) != "" {
			snap, err := tx.Get(paymentsColl.Doc(req.Payment.ID))
			switch {
			case err == nil:
				doc, err := decodeSnapshot[paymentDocument](snap, "payment")
				if err != nil {
					return err
				}
				existing = &paymentSnapshot{Ref: snap.Ref, doc: doc}
			case status.Code(err) != codes.NotFound:
				return err
			}
		}

		orderStatus := domain.OrderStatus(order.Status)
		if existing != nil && domain.PaymentStatus(existing.doc.Status) == domain.PaymentStatusCompleted {
			result.AlreadyProcessed = true
			result.Order = order.toDomain(orderID)
			result.Payment = existing.doc.toDomain(existing.Ref.ID)
			return nil
		}
		if orderStatus == domain.OrderStatusCompleted {
			result.AlreadyProcessed = true
			result.Order = order.toDomain(orderID)
			return nil
		}
		if !orderStatus.AwaitsFinalPayment() {
			return repositories.NewBookingError(repositories.BookingErrorInvalidOrderState,
				fmt.Sprintf("order %s is %s", orderID, orderStatus), nil)
		}

		payment := req.Payment
		payment.OrderID = orderID
		payment.Type = domain.PaymentTypeFinal
		payment.Status = domain.PaymentStatusCompleted
		payment.CreatedAt = now
		paymentRef := paymentsColl.Doc(payment.ID)
		if existing != nil {
			paymentRef = existing.Ref
			payment.ID = existing.Ref.ID
			payment.CreatedAt = existing.doc.CreatedAt
			if payment.PaymentLink == "" {
				payment.PaymentLink = existing.doc.PaymentLink
			}
			if payment.Amount == 0 {
				payment.Amount = existing.doc.Amount
			}
		}
		if strings.TrimSpace(payment.ID) == "" {
			return errors.New("complete final payment: payment id is required")
		}
		payment.UpdatedAt = now

		order.Status = string(domain.OrderStatusCompleted)
		order.CompletedAt = &now
		order.UpdatedAt = now
		if err := tx.Set(orderRef, order); err != nil {
			return err
		}
		if err := tx.Set(paymentRef, newPaymentDocument(payment)); err != nil {
			return err
		}

		result.Order = order.toDomain(orderID)
		result.Payment = newPaymentDocument(payment).toDomain(payment.ID)
		return nil
	}, r.txOpts...)
	if err != nil {
		return repositories.FinalPaymentCommitResult{}, wrapBookingError("booking.completeFinalPayment", err)
	}
	return result, nil
}

// RecordDepositReview stores a NEEDS_REVIEW deposit payment once per gateway transaction.
func (r *BookingRepository) RecordDepositReview(ctx context.Context, req repositories.ReviewCommit) (domain.Payment, error) {
	if r == nil || r.provider == nil {
		return domain.Payment{}, errors.New("booking repository not initialised")
	}
	orderID := strings.TrimSpace(req.Payment.OrderID)
	if orderID == "" || strings.TrimSpace(req.Payment.ID) == "" {
		return domain.Payment{}, errors.New("record deposit review: order id and payment id are required")
	}
	now := req.Now.UTC()

	var recorded domain.Payment
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, _, err := r.readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		paymentsColl := orderRef.Collection(paymentsCollection)
		if txID := strings.TrimSpace(req.Payment.TransactionID); txID != "" {
			existing, err := findPaymentInTx(tx, paymentsColl, txID)
			if err != nil {
				return err
			}
			if existing != nil {
				recorded = existing.doc.toDomain(existing.Ref.ID)
				return nil
			}
		}
		payment := req.Payment
		payment.Type = domain.PaymentTypeDeposit
		payment.Status = domain.PaymentStatusNeedsReview
		payment.CreatedAt = now
		payment.UpdatedAt = now
		doc := newPaymentDocument(payment)
		if err := tx.Create(paymentsColl.Doc(payment.ID), doc); err != nil {
			return err
		}
		recorded = doc.toDomain(payment.ID)
		return nil
	}, r.txOpts...)
	if err != nil {
		return domain.Payment{}, wrapBookingError("booking.recordDepositReview", err)
	}
	return recorded, nil
}

// Refund cancels every active schedule of the order, releases their slots, marks the deposit payment
// REFUNDED and moves the order to CANCELLED (from PENDING) or REFUNDED.
func (r *BookingRepository) Refund(ctx context.Context, req repositories.RefundCommit) (repositories.RefundCommitResult, error) {
	if r == nil || r.provider == nil {
		return repositories.RefundCommitResult{}, errors.New("booking repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.RefundCommitResult{}, errors.New("refund: order id is required")
	}
	now := req.Now.UTC()

	var result repositories.RefundCommitResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.RefundCommitResult{}

		orderRef, order, err := r.readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		orderStatus := domain.OrderStatus(order.Status)
		if orderStatus.IsTerminal() {
			return repositories.NewBookingError(repositories.BookingErrorInvalidOrderState,
				fmt.Sprintf("order %s is %s", orderID, orderStatus), nil)
		}

		refunded, err := depositsToRefund(tx, orderRef.Collection(paymentsCollection), orderID, req.PaymentIDs)
		if err != nil {
			return err
		}

		schedulesQuery, err := r.schedulesByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		scheduleSnaps, err := tx.Documents(schedulesQuery).GetAll()
		if err != nil {
			return err
		}
		type cancellation struct {
			ref     *firestore.DocumentRef
			doc     scheduleDocument
			lockRef *firestore.DocumentRef
		}
		var cancellations []cancellation
		for _, snap := range scheduleSnaps {
			doc, err := decodeSnapshot[scheduleDocument](snap, "schedule")
			if err != nil {
				return err
			}
			if !domain.ScheduleStatus(doc.Status).Active() {
				continue
			}
			c := cancellation{ref: snap.Ref, doc: doc}
			lockRef, err := r.locks.Ref(ctx, doc.lockID())
			if err != nil {
				return err
			}
			lockSnap, err := tx.Get(lockRef)
			switch {
			case err == nil:
				lock, err := decodeSnapshot[slotLockDocument](lockSnap, "slot lock")
				if err != nil {
					return err
				}
				if lock.ScheduleID == snap.Ref.ID {
					c.lockRef = lockRef
				}
			case status.Code(err) != codes.NotFound:
				return err
			}
			cancellations = append(cancellations, c)
		}

		for _, p := range refunded {
			p.doc.Status = string(domain.PaymentStatusRefunded)
			p.doc.RefundedAt = &now
			p.doc.UpdatedAt = now
			if err := tx.Set(p.Ref, p.doc); err != nil {
				return err
			}
		}

		cancelled := make([]domain.Schedule, 0, len(cancellations))
		for _, c := range cancellations {
			c.doc.Status = string(domain.ScheduleStatusCancelled)
			c.doc.UpdatedAt = now
			if err := tx.Set(c.ref, c.doc); err != nil {
				return err
			}
			if c.lockRef != nil {
				if err := tx.Delete(c.lockRef); err != nil {
					return err
				}
			}
			cancelled = append(cancelled, c.doc.toDomain(c.ref.ID))
		}

		if orderStatus == domain.OrderStatusPending {
			order.Status = string(domain.OrderStatusCancelled)
			order.CanceledAt = &now
		} else {
			order.Status = string(domain.OrderStatusRefunded)
			order.RefundedAt = &now
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			order.CancelReason = reason
		}
		order.UpdatedAt = now
		if err := tx.Set(orderRef, order); err != nil {
			return err
		}

		result.Order = order.toDomain(orderID)
		result.CancelledSchedules = cancelled
		return nil
	}, r.txOpts...)
	if err != nil {
		return repositories.RefundCommitResult{}, wrapBookingError("booking.refund", err)
	}
	return result, nil
}

func (r *BookingRepository) readOrder(ctx context.Context, tx *firestore.Transaction, orderID string) (*firestore.DocumentRef, orderDocument, error) {
	ref, err := r.orders.Ref(ctx, orderID)
	if err != nil {
		return nil, orderDocument{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, orderDocument{}, repositories.NewBookingError(repositories.BookingErrorOrderNotFound,
				fmt.Sprintf("order %s not found", orderID), err)
		}
		return nil, orderDocument{}, err
	}
	doc, err := decodeSnapshot[orderDocument](snap, "order")
	if err != nil {
		return nil, orderDocument{}, err
	}
	return ref, doc, nil
}

// slotHeldBySchedule re-reads the team's schedules for the day inside the transaction so schedules
// written before slot locks existed still block the slot.
func (r *BookingRepository) slotHeldBySchedule(ctx context.Context, tx *firestore.Transaction, teamID string, date time.Time, slot string) (bool, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return false, err
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	query := client.Collection(schedulesCollection).
		Where("teamId", "==", strings.TrimSpace(teamID)).
		Where("scheduledDate", ">=", start).
		Where("scheduledDate", "<=", end)

	iter := tx.Documents(query)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		doc, err := decodeSnapshot[scheduleDocument](snap, "schedule")
		if err != nil {
			return false, err
		}
		if doc.TimeSlot == strings.TrimSpace(slot) && domain.ScheduleStatus(doc.Status).Active() {
			return true, nil
		}
	}
}

func (r *BookingRepository) schedulesByOrder(ctx context.Context, orderID string) (firestore.Query, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	return client.Collection(schedulesCollection).Where("orderId", "==", orderID), nil
}

type paymentSnapshot struct {
	Ref *firestore.DocumentRef
	doc paymentDocument
}

func findPaymentInTx(tx *firestore.Transaction, coll *firestore.CollectionRef, transactionID string) (*paymentSnapshot, error) {
	snaps, err := tx.Documents(coll.Where("transactionId", "==", transactionID).Limit(1)).GetAll()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	doc, err := decodeSnapshot[paymentDocument](snaps[0], "payment")
	if err != nil {
		return nil, err
	}
	return &paymentSnapshot{Ref: snaps[0].Ref, doc: doc}, nil
}

// depositsToRefund reads the order's deposits inside the transaction and returns the ones named in
// paymentIDs. Any other deposit still holding funds means the caller refunded a stale view.
func depositsToRefund(tx *firestore.Transaction, coll *firestore.CollectionRef, orderID string, paymentIDs []string) ([]paymentSnapshot, error) {
	wanted := make(map[string]bool, len(paymentIDs))
	for _, id := range paymentIDs {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = true
		}
	}
	snaps, err := tx.Documents(coll.Where("type", "==", string(domain.PaymentTypeDeposit))).GetAll()
	if err != nil {
		return nil, err
	}
	var refunded []paymentSnapshot
	for _, snap := range snaps {
		doc, err := decodeSnapshot[paymentDocument](snap, "payment")
		if err != nil {
			return nil, err
		}
		if !wanted[snap.Ref.ID] {
			if doc.toDomain(snap.Ref.ID).HoldsDepositFunds() {
				return nil, repositories.NewBookingError(repositories.BookingErrorPaymentsChanged,
					fmt.Sprintf("order %s has unrefunded deposit %s", orderID, snap.Ref.ID), nil)
			}
			continue
		}
		delete(wanted, snap.Ref.ID)
		refunded = append(refunded, paymentSnapshot{Ref: snap.Ref, doc: doc})
	}
	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for id := range wanted {
			missing = append(missing, id)
		}
		sort.Strings(missing)
		return nil, repositories.NewBookingError(repositories.BookingErrorPaymentNotFound,
			fmt.Sprintf("payments %s not found", strings.Join(missing, ", ")), nil)
	}
	return refunded, nil
}

func wrapBookingError(op string, err error) error {
	if err == nil {
		return nil
	}
	var bookingErr *repositories.BookingError
	if errors.As(err, &bookingErr) {
		if bookingErr.Op == "" {
			bookingErr.Op = op
		}
		return bookingErr
	}
	return pfirestore.WrapError(op, err)
}
