package services

import (
	"context"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Team               = domain.Team
	TourService        = domain.Service
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderTotals        = domain.OrderTotals
	Schedule           = domain.Schedule
	Payment            = domain.Payment
	Notification       = domain.Notification
	Invoice            = domain.Invoice
	User               = domain.User
	SystemHealthReport = domain.SystemHealthReport
)

// Actor is the authenticated caller on whose behalf a command runs.
type Actor = auth.Identity

// AvailabilityService computes free and occupied slots per team and day.
type AvailabilityService interface {
	GetAvailability(ctx context.Context, date string) (AvailabilityResult, error)
	TeamSlots(ctx context.Context, teamID string, date string) (TeamAvailability, error)
	// IsSlotTaken reports whether a non-cancelled schedule already holds the slot.
	IsSlotTaken(ctx context.Context, teamID string, date time.Time, slot string) (bool, error)
}

// TeamService manages bookable teams.
type TeamService interface {
	CreateTeam(ctx context.Context, cmd UpsertTeamCommand) (Team, error)
	UpdateTeam(ctx context.Context, cmd UpsertTeamCommand) (Team, error)
	GetTeam(ctx context.Context, teamID string) (Team, error)
	ListTeams(ctx context.Context, activeOnly bool) ([]Team, error)
}

// ServiceCatalog manages the services customers can order.
type ServiceCatalog interface {
	CreateService(ctx context.Context, cmd UpsertServiceCommand) (TourService, error)
	UpdateService(ctx context.Context, cmd UpsertServiceCommand) (TourService, error)
	GetService(ctx context.Context, serviceID string) (TourService, error)
	ListServices(ctx context.Context, activeOnly bool) ([]TourService, error)
}

// OrderService quotes, creates and reads orders.
type OrderService interface {
	Calculate(ctx context.Context, cmd CreateOrderCommand) (OrderQuote, error)
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, actor *Actor) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListPayments(ctx context.Context, orderID string, actor *Actor) ([]Payment, error)
}

// UserService manages customer profiles and role assignment.
type UserService interface {
	Register(ctx context.Context, cmd RegisterUserCommand) (User, error)
	GetProfile(ctx context.Context, userID string) (User, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error)
	AssignRole(ctx context.Context, cmd AssignRoleCommand) (User, error)
}

// DepositService is the single entry point that moves an order from PENDING to DEPOSIT_PAID.
type DepositService interface {
	// Confirm commits an approved deposit. It is idempotent per order.
	Confirm(ctx context.Context, req DepositConfirmation) (DepositResult, error)
	// PayDeposit charges the customer synchronously and then confirms the deposit.
	PayDeposit(ctx context.Context, cmd PayDepositCommand) (DepositResult, error)
}

// FinalPaymentService issues remainder payment links and settles them.
type FinalPaymentService interface {
	GenerateLink(ctx context.Context, cmd GenerateFinalPaymentCommand) (FinalPaymentLink, error)
	Complete(ctx context.Context, req FinalPaymentApproval) (FinalPaymentResult, error)
}

// PaymentWebhookService reconciles asynchronous gateway notifications.
type PaymentWebhookService interface {
	Handle(ctx context.Context, notification PaymentNotification) (WebhookOutcome, error)
}

// ScheduleService drives the schedule lifecycle after booking.
type ScheduleService interface {
	GetSchedule(ctx context.Context, scheduleID string, actor *Actor) (Schedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Schedule, error)
	ConfirmSchedule(ctx context.Context, scheduleID string) (Schedule, error)
	CompleteSchedule(ctx context.Context, scheduleID string) (Schedule, error)
	CancelSchedule(ctx context.Context, cmd CancelScheduleCommand) (Schedule, error)
	UpdateNotes(ctx context.Context, cmd UpdateScheduleNotesCommand) (Schedule, error)
}

// RefundService cancels orders and returns their deposit.
type RefundService interface {
	Refund(ctx context.Context, cmd RefundCommand) (RefundResult, error)
}

// NotificationService delivers customer messages. Delivery failures are recorded, never returned.
type NotificationService interface {
	Notify(ctx context.Context, req NotificationRequest)
	RetryFailed(ctx context.Context, limit int) (RetrySummary, error)
}

// InvoiceService issues and serves service invoices.
type InvoiceService interface {
	Issue(ctx context.Context, cmd IssueInvoiceCommand) (InvoiceView, error)
	GetForOrder(ctx context.Context, orderID string, actor *Actor) (InvoiceView, error)
}

// ReconciliationService lists deposits that need operator attention.
type ReconciliationService interface {
	ListPending(ctx context.Context, limit int) ([]Payment, error)
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// AvailabilityResult lists the slot view of every active team on a date.
type AvailabilityResult struct {
	Date  string
	Teams []TeamAvailability
}

// TeamAvailability is the slot view of one team on one date.
type TeamAvailability struct {
	TeamID         string
	TeamName       string
	AllSlots       []string
	AvailableSlots []string
	OccupiedSlots  []string
}

// UpsertTeamCommand creates or replaces a team.
type UpsertTeamCommand struct {
	TeamID         string
	Name           string
	Active         bool
	MaxPartySize   int
	OperatingHours []domain.OperatingHours
}

// UpsertServiceCommand creates or replaces a catalog service.
type UpsertServiceCommand struct {
	ServiceID         string
	Name              string
	Description       string
	Price             int64
	MaxPeople         int
	DurationMinutes   int
	Active            bool
	RequiredDocuments []string
}

// CreateOrderCommand describes a booking request.
type CreateOrderCommand struct {
	UserID    string
	PartySize int
	Items     []OrderItemInput
}

// OrderItemInput is one requested service on a date, team and slot.
type OrderItemInput struct {
	ServiceID     string
	Quantity      int
	ScheduledDate string
	TeamID        string
	TimeSlot      string
}

// OrderQuote is the priced, validated form of a CreateOrderCommand.
type OrderQuote struct {
	Items  []OrderItem
	Totals OrderTotals
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// RegisterUserCommand creates the profile of a freshly signed-up user.
type RegisterUserCommand struct {
	UserID string
	Name   string
	Email  string
	Phone  string
	TaxID  string
	Locale string
}

// UpdateProfileCommand patches profile fields; nil fields are left unchanged.
type UpdateProfileCommand struct {
	UserID string
	Name   *string
	Phone  *string
	TaxID  *string
	Locale *string
}

// AssignRoleCommand changes the role of a user.
type AssignRoleCommand struct {
	Actor  *Actor
	UserID string
	Role   string
}

// DepositSource identifies which trigger is confirming a deposit.
type DepositSource string

const (
	DepositSourceSync    DepositSource = "sync"
	DepositSourceWebhook DepositSource = "webhook"
)

// DepositConfirmation carries an approved deposit charge.
type DepositConfirmation struct {
	Source        DepositSource
	OrderID       string
	TransactionID string
	Amount        int64
	Method        string
	Provider      string
}

// DepositResult reports what Confirm or PayDeposit did.
type DepositResult struct {
	Order     Order
	Payment   Payment
	Schedules []Schedule
	// AlreadyProcessed is set when the order had already left PENDING; nothing was written.
	AlreadyProcessed bool
	// Conflict is set when a webhook deposit could not be booked and was recorded for review.
	Conflict     bool
	ConflictSlot *SlotConflict
}

// SlotConflict names the occupied slot that blocked a booking.
type SlotConflict struct {
	TeamID string
	Date   string
	Slot   string
}

// PayDepositCommand charges the deposit of an order synchronously.
type PayDepositCommand struct {
	OrderID  string
	Actor    *Actor
	Method   string
	Token    string
	Provider string
	// IdempotencyKey is the client's request key; it scopes the gateway charge to this attempt.
	IdempotencyKey string
}

// GenerateFinalPaymentCommand asks for a payment link for the order remainder.
type GenerateFinalPaymentCommand struct {
	OrderID  string
	Actor    *Actor
	Provider string
}

// FinalPaymentLink is the hosted payment page sent to the customer.
type FinalPaymentLink struct {
	OrderID   string
	PaymentID string
	URL       string
	Amount    int64
	ExpiresAt time.Time
}

// FinalPaymentApproval carries an approved remainder payment.
type FinalPaymentApproval struct {
	OrderID       string
	TransactionID string
	Amount        int64
	Method        string
	Provider      string
}

// FinalPaymentResult reports the order after settlement.
type FinalPaymentResult struct {
	Order            Order
	Payment          Payment
	AlreadyProcessed bool
}

// PaymentNotification is the decoded body of a gateway callback.
type PaymentNotification struct {
	Type      string
	PaymentID string
}

// WebhookOutcome is reported back to the gateway in the callback response.
type WebhookOutcome string

const (
	WebhookOutcomeOK       WebhookOutcome = "ok"
	WebhookOutcomeIgnored  WebhookOutcome = "ignored"
	WebhookOutcomeNotFound WebhookOutcome = "not_found"
	WebhookOutcomeError    WebhookOutcome = "error"
)

// ScheduleFilter narrows staff schedule listings.
type ScheduleFilter struct {
	// Date is a YYYY-MM-DD calendar day; empty lists all days.
	Date   string
	TeamID string
	Limit  int
}

// CancelScheduleCommand cancels one schedule and releases its slot.
type CancelScheduleCommand struct {
	ScheduleID string
	Actor      *Actor
}

// UpdateScheduleNotesCommand replaces the free-text notes of a schedule.
type UpdateScheduleNotesCommand struct {
	ScheduleID string
	Notes      string
}

// RefundCommand cancels an order and refunds its deposit.
type RefundCommand struct {
	OrderID string
	Actor   *Actor
	Reason  string
}

// RefundResult reports the order after refund.
type RefundResult struct {
	Order              Order
	RefundedPayments   []Payment
	CancelledSchedules []Schedule
}

// RefundedAmount sums the deposits returned to the customer.
func (r RefundResult) RefundedAmount() int64 {
	var total int64
	for _, payment := range r.RefundedPayments {
		total += payment.Amount
	}
	return total
}

// NotificationRequest asks for a templated WhatsApp message and an optional email.
type NotificationRequest struct {
	OrderID  string
	UserID   string
	Template notifications.Template
	Vars     map[string]string
	// Amounts are centavo values formatted in the recipient's locale before rendering.
	Amounts map[string]int64
	Email   *EmailContent
	// EmailOnly suppresses the WhatsApp message.
	EmailOnly bool
}

// EmailContent is the email sent alongside a notification.
type EmailContent struct {
	Subject     string
	HTML        string
	Attachments []notifications.Attachment
}

// RetrySummary reports the outcome of a notification retry pass.
type RetrySummary struct {
	Attempted int
	Sent      int
	Failed    int
}

// InvoiceDelivery selects how an issued invoice reaches the customer.
type InvoiceDelivery string

const (
	InvoiceDeliveryEmail    InvoiceDelivery = "email"
	InvoiceDeliveryWhatsApp InvoiceDelivery = "whatsapp"
	InvoiceDeliveryBoth     InvoiceDelivery = "both"
)

// IssueInvoiceCommand requests the invoice of an order.
type IssueInvoiceCommand struct {
	OrderID  string
	Delivery InvoiceDelivery
	Actor    *Actor
}

// InvoiceView is an invoice with an optional time-limited download link.
type InvoiceView struct {
	Invoice  Invoice
	Download *storage.SignedURL
}
