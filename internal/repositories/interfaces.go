package repositories

import (
	"context"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Teams() TeamRepository
	Services() ServiceCatalogRepository
	Users() UserRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Schedules() ScheduleRepository
	Notifications() NotificationRepository
	Invoices() InvoiceRepository
	Bookings() BookingRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// TeamRepository persists bookable teams and their operating hours.
type TeamRepository interface {
	Insert(ctx context.Context, team domain.Team) error
	Update(ctx context.Context, team domain.Team) error
	FindByID(ctx context.Context, teamID string) (domain.Team, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Team, error)
}

// ServiceCatalogRepository persists the services customers can order.
type ServiceCatalogRepository interface {
	Insert(ctx context.Context, service domain.Service) error
	Update(ctx context.Context, service domain.Service) error
	FindByID(ctx context.Context, serviceID string) (domain.Service, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Service, error)
}

// UserRepository stores customer contact profiles.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
}

// OrderRepository persists order headers. Status transitions after creation belong to BookingRepository.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PaymentRepository stores payment records underneath an order document.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
	ListByStatus(ctx context.Context, status domain.PaymentStatus, limit int) ([]domain.Payment, error)
}

// ScheduleRepository reads schedules and applies staff-driven lifecycle changes.
type ScheduleRepository interface {
	FindByID(ctx context.Context, scheduleID string) (domain.Schedule, error)
	// ListByDay returns every schedule whose scheduled date falls in [start, end], regardless of team or status.
	ListByDay(ctx context.Context, start, end time.Time) ([]domain.Schedule, error)
	ListByTeamDay(ctx context.Context, teamID string, start, end time.Time) ([]domain.Schedule, error)
	List(ctx context.Context, filter ScheduleListFilter) ([]domain.Schedule, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Schedule, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Schedule, error)
	// Mutate reads the schedule, applies fn and stores the result in one transaction. Cancelling a
	// schedule through Mutate releases its slot.
	Mutate(ctx context.Context, scheduleID string, fn func(*domain.Schedule) error) (domain.Schedule, error)
}

// NotificationRepository records customer notification attempts under their order.
type NotificationRepository interface {
	Append(ctx context.Context, notification domain.Notification) error
	Update(ctx context.Context, notification domain.Notification) error
	ListFailed(ctx context.Context, limit int) ([]domain.Notification, error)
}

// InvoiceRepository stores invoices issued for orders.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	FindLatestByOrder(ctx context.Context, orderID string) (domain.Invoice, error)
}

// BookingRepository owns the transactional order transitions that touch more than one document.
type BookingRepository interface {
	ConfirmDeposit(ctx context.Context, req DepositCommit) (DepositCommitResult, error)
	CompleteFinalPayment(ctx context.Context, req FinalPaymentCommit) (FinalPaymentCommitResult, error)
	RecordDepositReview(ctx context.Context, req ReviewCommit) (domain.Payment, error)
	Refund(ctx context.Context, req RefundCommit) (RefundCommitResult, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// ScheduleDraft is a schedule to create when a deposit is confirmed.
type ScheduleDraft struct {
	ID        string
	TeamID    string
	Date      time.Time
	TimeSlot  string
	Services  []domain.ScheduleService
	PartySize int
}

// DepositCommit carries everything written when an order's deposit is confirmed.
type DepositCommit struct {
	OrderID   string
	Payment   domain.Payment
	Schedules []ScheduleDraft
	Now       time.Time
}

// DepositCommitResult reports the outcome of ConfirmDeposit. AlreadyProcessed is set, and nothing is
// written, when the order had already left PENDING.
type DepositCommitResult struct {
	AlreadyProcessed bool
	Order            domain.Order
	Payment          domain.Payment
	Schedules        []domain.Schedule
}

// FinalPaymentCommit settles the order remainder.
type FinalPaymentCommit struct {
	OrderID string
	Payment domain.Payment
	Now     time.Time
}

// FinalPaymentCommitResult reports the outcome of CompleteFinalPayment.
type FinalPaymentCommitResult struct {
	AlreadyProcessed bool
	Order            domain.Order
	Payment          domain.Payment
}

// ReviewCommit records an approved deposit charge that could not be booked.
type ReviewCommit struct {
	Payment domain.Payment
	Now     time.Time
}

// RefundCommit cancels an order, its schedules and refunds its deposits.
type RefundCommit struct {
	OrderID string
	// PaymentIDs lists the deposit payments already returned at the gateway. The commit fails with
	// BookingErrorPaymentsChanged when the order holds any other refundable deposit.
	PaymentIDs []string
	Reason     string
	Now        time.Time
}

// RefundCommitResult reports the order after refund and the schedules it cancelled.
type RefundCommitResult struct {
	Order              domain.Order
	CancelledSchedules []domain.Schedule
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ScheduleListFilter struct {
	TeamID string
	// From and To bound the scheduled date inclusively when set.
	From  *time.Time
	To    *time.Time
	Limit int
}
