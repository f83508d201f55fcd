package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// Registry wires every Firestore repository on a shared provider.
type Registry struct {
	provider      *pfirestore.Provider
	teams         *TeamRepository
	services      *ServiceCatalogRepository
	users         *UserRepository
	orders        *OrderRepository
	payments      *PaymentRepository
	schedules     *ScheduleRepository
	notifications *NotificationRepository
	invoices      *InvoiceRepository
	bookings      *BookingRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. health may be nil when readiness checks are not wired.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository, txOpts ...pfirestore.TxOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("repository registry requires firestore provider")
	}
	reg := &Registry{provider: provider, health: health}
	var err error
	if reg.teams, err = NewTeamRepository(provider); err != nil {
		return nil, err
	}
	if reg.services, err = NewServiceCatalogRepository(provider); err != nil {
		return nil, err
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, err
	}
	if reg.schedules, err = NewScheduleRepository(provider); err != nil {
		return nil, err
	}
	if reg.notifications, err = NewNotificationRepository(provider); err != nil {
		return nil, err
	}
	if reg.invoices, err = NewInvoiceRepository(provider); err != nil {
		return nil, err
	}
	if reg.bookings, err = NewBookingRepository(provider, txOpts...); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Teams() repositories.TeamRepository                 { return r.teams }
func (r *Registry) Services() repositories.ServiceCatalogRepository     { return r.services }
func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Schedules() repositories.ScheduleRepository         { return r.schedules }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Invoices() repositories.InvoiceRepository           { return r.invoices }
func (r *Registry) Bookings() repositories.BookingRepository           { return r.bookings }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }
