package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OperatingHours is a recurring weekly window during which a team can be booked.
type OperatingHours struct {
	// DayOfWeek follows time.Weekday numbering (0 = Sunday ... 6 = Saturday).
	DayOfWeek           int
	StartTime           string
	EndTime             string
	SlotDurationMinutes int
}

// Team is a bookable crew with its weekly operating-hour rules.
type Team struct {
	ID             string
	Name           string
	Active         bool
	MaxPartySize   int
	OperatingHours []OperatingHours
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Service is a catalog entry customers can order.
type Service struct {
	ID                string
	Name              string
	Description       string
	Price             int64
	MaxPeople         int
	DurationMinutes   int
	Active            bool
	RequiredDocuments []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits its deposit.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusDepositPaid indicates the deposit was confirmed and schedules exist.
	OrderStatusDepositPaid OrderStatus = "DEPOSIT_PAID"
	// OrderStatusScheduled is treated as equivalent to DEPOSIT_PAID for final payment eligibility.
	OrderStatusScheduled OrderStatus = "SCHEDULED"
	// OrderStatusCompleted indicates the final payment settled.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled indicates the order was abandoned before any deposit settled.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded indicates the deposit was returned after confirmation.
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// IsTerminal reports whether no further transitions are allowed from the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// AwaitsFinalPayment reports whether the order has its deposit and can settle the remainder.
func (s OrderStatus) AwaitsFinalPayment() bool {
	return s == OrderStatusDepositPaid || s == OrderStatusScheduled
}

// Order is a customer booking request spanning one or more scheduled items.
type Order struct {
	ID            string
	UserID        string
	Items         []OrderItem
	Totals        OrderTotals
	Status        OrderStatus
	PartySize     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DepositPaidAt *time.Time
	CompletedAt   *time.Time
	CanceledAt    *time.Time
	RefundedAt    *time.Time
	CancelReason  string
}

// OrderItem snapshots a booked service at order submission time.
type OrderItem struct {
	ServiceID   string
	ServiceName string
	Quantity    int
	UnitPrice   int64
	// ScheduledDate is a calendar date formatted as YYYY-MM-DD.
	ScheduledDate string
	TeamID        string
	TimeSlot      string
}

// OrderTotals holds rolled-up monetary fields in centavos.
type OrderTotals struct {
	Subtotal int64
	// DiscountRate is expressed in basis points.
	DiscountRate int
	Discount     int64
	Total        int64
	Deposit      int64
	Remainder    int64
}

// ScheduleStatus enumerates the lifecycle of a single booking slot.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "PENDING"
	ScheduleStatusConfirmed ScheduleStatus = "CONFIRMED"
	ScheduleStatusCompleted ScheduleStatus = "COMPLETED"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
)

// Active reports whether the schedule still occupies its slot.
func (s ScheduleStatus) Active() bool {
	return s != ScheduleStatusCancelled
}

// Schedule is one team booking created from a group of order items sharing date, team and slot.
type Schedule struct {
	ID            string
	OrderID       string
	UserID        string
	TeamID        string
	ScheduledDate time.Time
	TimeSlot      string
	Status        ScheduleStatus
	Notes         string
	PartySize     int
	Services      []ScheduleService
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ScheduleService references a catalog service covered by a schedule.
type ScheduleService struct {
	ServiceID   string
	ServiceName string
}

// PaymentType distinguishes the upfront deposit from the final balance.
type PaymentType string

const (
	PaymentTypeDeposit PaymentType = "DEPOSIT"
	PaymentTypeFinal   PaymentType = "FINAL"
)

// PaymentStatus enumerates stored payment record states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	// PaymentStatusNeedsReview marks an approved charge that could not be booked.
	PaymentStatusNeedsReview PaymentStatus = "NEEDS_REVIEW"
	PaymentStatusRefunded    PaymentStatus = "REFUNDED"
	PaymentStatusFailed      PaymentStatus = "FAILED"
)

// Payment is a payment record stored beneath its order.
type Payment struct {
	ID            string
	OrderID       string
	Type          PaymentType
	Status        PaymentStatus
	Amount        int64
	Method        string
	Provider      string
	TransactionID string
	PaymentLink   string
	Note          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	RefundedAt    *time.Time
}

// HoldsDepositFunds reports whether the gateway may hold customer money for this deposit: captured,
// held for review, or still pending on a live transaction.
func (p Payment) HoldsDepositFunds() bool {
	if p.Type != PaymentTypeDeposit {
		return false
	}
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusNeedsReview:
		return true
	case PaymentStatusPending:
		return strings.TrimSpace(p.TransactionID) != ""
	}
	return false
}

// NotificationChannel identifies how a customer message was delivered.
type NotificationChannel string

const (
	NotificationChannelWhatsApp NotificationChannel = "WHATSAPP"
	NotificationChannelEmail    NotificationChannel = "EMAIL"
)

// NotificationStatus records the delivery outcome of a notification.
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
	NotificationStatusSkipped NotificationStatus = "SKIPPED"
)

// Notification is the audit record of a customer message attached to an order.
type Notification struct {
	ID        string
	OrderID   string
	Channel   NotificationChannel
	Template  string
	Recipient string
	Subject   string
	Message   string
	Status    NotificationStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invoice is a service invoice (NFS-e) issued for an order.
type Invoice struct {
	ID            string
	OrderID       string
	ExternalID    string
	Number        string
	Status        string
	PDFURL        string
	XMLURL        string
	ArchiveObject string
	CreatedAt     time.Time
}

// User holds the customer profile used for notifications and invoicing.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	TaxID     string
	Locale    string
	// Role mirrors the role custom claim: user, staff or admin.
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but the service keeps running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	// PendingReviews counts approved deposits that could not be booked; -1 when it could not be read.
	PendingReviews int
	GeneratedAt    time.Time
}
