package repositories

import (
	"errors"
	"fmt"
)

// BookingErrorCode enumerates repository error causes for transactional booking operations.
type BookingErrorCode string

const (
	// BookingErrorUnknown represents an unspecified failure.
	BookingErrorUnknown BookingErrorCode = "booking_unknown"
	// BookingErrorOrderNotFound indicates the order document is missing.
	BookingErrorOrderNotFound BookingErrorCode = "booking_order_not_found"
	// BookingErrorInvalidOrderState indicates the order status forbids the operation.
	BookingErrorInvalidOrderState BookingErrorCode = "booking_invalid_state"
	// BookingErrorSlotTaken indicates a team slot is already held by another schedule.
	BookingErrorSlotTaken BookingErrorCode = "booking_slot_taken"
	// BookingErrorPaymentNotFound indicates the referenced payment is missing.
	BookingErrorPaymentNotFound BookingErrorCode = "booking_payment_not_found"
	// BookingErrorPaymentsChanged indicates the order gained a refundable payment the caller did not account for.
	BookingErrorPaymentsChanged BookingErrorCode = "booking_payments_changed"
)

// BookingError wraps booking-specific failures with machine readable codes.
type BookingError struct {
	Op      string
	Code    BookingErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *BookingError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *BookingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewBookingError constructs a typed booking error.
func NewBookingError(code BookingErrorCode, message string, err error) *BookingError {
	if message == "" {
		message = string(code)
	}
	return &BookingError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// SlotConflictError names the slot that was found occupied.
type SlotConflictError struct {
	TeamID string
	Date   string
	Slot   string
}

func (e *SlotConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("slot %s on %s for team %s is already booked", e.Slot, e.Date, e.TeamID)
}

// NewSlotConflict builds a BookingError carrying the occupied slot.
func NewSlotConflict(teamID, date, slot string) *BookingError {
	conflict := &SlotConflictError{TeamID: teamID, Date: date, Slot: slot}
	return NewBookingError(BookingErrorSlotTaken, conflict.Error(), conflict)
}

// BookingErrorCodeOf extracts the booking error code from err, or the empty code.
func BookingErrorCodeOf(err error) BookingErrorCode {
	var bookingErr *BookingError
	if errors.As(err, &bookingErr) {
		return bookingErr.Code
	}
	return ""
}
