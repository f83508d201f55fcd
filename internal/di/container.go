package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/invoicing"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/config"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Availability   services.AvailabilityService
	Catalog        services.ServiceCatalog
	Teams          services.TeamService
	Users          services.UserService
	Orders         services.OrderService
	Deposits       services.DepositService
	FinalPayments  services.FinalPaymentService
	Refunds        services.RefundService
	Invoices       services.InvoiceService
	Notifications  services.NotificationService
	Webhooks       services.PaymentWebhookService
	Reconciliation services.ReconciliationService
	Schedules      services.ScheduleService
	System         services.SystemService
}

// Infrastructure carries the external adapters built by the entrypoint. Nil members disable the
// matching side effect: no Events means no Pub/Sub publishing, no Archive means invoices keep only
// the authority's PDF link.
type Infrastructure struct {
	Gateway  services.PaymentGateway
	WhatsApp notifications.WhatsAppSender
	Email    notifications.EmailSender
	Issuer   invoicing.Issuer
	Archive  services.InvoiceArchive
	Events   services.EventPublisher
	Roles    services.RoleAssigner
	Emails   services.EmailDirectory
	Build    services.BuildInfo
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries and
// fake adapters.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services
	var err error
	clock := infra.Clock
	location := cfg.Booking.Location

	if svc.Availability, err = services.NewAvailabilityService(services.AvailabilityServiceDeps{
		Teams:     reg.Teams(),
		Schedules: reg.Schedules(),
		Location:  location,
	}); err != nil {
		return Services{}, fmt.Errorf("build availability service: %w", err)
	}

	if svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Services: reg.Services(),
		Clock:    clock,
		Logger:   serviceLogger(infra.Logger, "catalog"),
	}); err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	if svc.Teams, err = services.NewTeamService(services.TeamServiceDeps{
		Teams:  reg.Teams(),
		Clock:  clock,
		Logger: serviceLogger(infra.Logger, "teams"),
	}); err != nil {
		return Services{}, fmt.Errorf("build team service: %w", err)
	}

	if svc.Users, err = services.NewUserService(services.UserServiceDeps{
		Users:  reg.Users(),
		Roles:  infra.Roles,
		Emails: infra.Emails,
		Clock:  clock,
		Logger: serviceLogger(infra.Logger, "users"),
	}); err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}

	if svc.Notifications, err = services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Users:         reg.Users(),
		WhatsApp:      infra.WhatsApp,
		Email:         infra.Email,
		Timeout:       cfg.Notifications.Timeout,
		Clock:         clock,
		Logger:        serviceLogger(infra.Logger, "notifications"),
	}); err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}

	if svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Payments: reg.Payments(),
		Services: reg.Services(),
		Teams:    reg.Teams(),
		Location: location,
		Clock:    clock,
		Logger:   serviceLogger(infra.Logger, "orders"),
	}); err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	if svc.Deposits, err = services.NewDepositService(services.DepositServiceDeps{
		Orders:         reg.Orders(),
		Payments:       reg.Payments(),
		Bookings:       reg.Bookings(),
		Catalog:        reg.Services(),
		Availability:   svc.Availability,
		Gateway:        infra.Gateway,
		Notifications:  svc.Notifications,
		Events:         infra.Events,
		Location:       location,
		GatewayTimeout: cfg.Booking.GatewayTimeout,
		Clock:          clock,
		Logger:         serviceLogger(infra.Logger, "deposits"),
	}); err != nil {
		return Services{}, fmt.Errorf("build deposit service: %w", err)
	}

	if infra.Issuer != nil {
		if svc.Invoices, err = services.NewInvoiceService(services.InvoiceServiceDeps{
			Orders:        reg.Orders(),
			Users:         reg.Users(),
			Invoices:      reg.Invoices(),
			Issuer:        infra.Issuer,
			Archive:       infra.Archive,
			Notifications: svc.Notifications,
			Timeout:       cfg.Invoicing.Timeout,
			Clock:         clock,
			Logger:        serviceLogger(infra.Logger, "invoices"),
		}); err != nil {
			return Services{}, fmt.Errorf("build invoice service: %w", err)
		}
	}

	if svc.FinalPayments, err = services.NewFinalPaymentService(services.FinalPaymentServiceDeps{
		Orders:         reg.Orders(),
		Payments:       reg.Payments(),
		Bookings:       reg.Bookings(),
		Users:          reg.Users(),
		Gateway:        infra.Gateway,
		Notifications:  svc.Notifications,
		Invoices:       svc.Invoices,
		Events:         infra.Events,
		SuccessURL:     cfg.PSP.SuccessURL,
		CancelURL:      cfg.PSP.CancelURL,
		GatewayTimeout: cfg.Booking.GatewayTimeout,
		Clock:          clock,
		Logger:         serviceLogger(infra.Logger, "final_payments"),
	}); err != nil {
		return Services{}, fmt.Errorf("build final payment service: %w", err)
	}

	if svc.Refunds, err = services.NewRefundService(services.RefundServiceDeps{
		Orders:         reg.Orders(),
		Payments:       reg.Payments(),
		Bookings:       reg.Bookings(),
		Gateway:        infra.Gateway,
		Notifications:  svc.Notifications,
		Events:         infra.Events,
		GatewayTimeout: cfg.Booking.GatewayTimeout,
		Clock:          clock,
		Logger:         serviceLogger(infra.Logger, "refunds"),
	}); err != nil {
		return Services{}, fmt.Errorf("build refund service: %w", err)
	}

	if svc.Webhooks, err = services.NewPaymentWebhookService(services.PaymentWebhookServiceDeps{
		Payments:       reg.Payments(),
		Gateway:        infra.Gateway,
		Deposits:       svc.Deposits,
		FinalPayments:  svc.FinalPayments,
		GatewayTimeout: cfg.Booking.GatewayTimeout,
		Logger:         serviceLogger(infra.Logger, "webhooks"),
	}); err != nil {
		return Services{}, fmt.Errorf("build payment webhook service: %w", err)
	}

	if svc.Reconciliation, err = services.NewReconciliationService(services.ReconciliationServiceDeps{
		Payments: reg.Payments(),
	}); err != nil {
		return Services{}, fmt.Errorf("build reconciliation service: %w", err)
	}

	if svc.Schedules, err = services.NewScheduleService(services.ScheduleServiceDeps{
		Schedules: reg.Schedules(),
		Location:  location,
		ListLimit: cfg.Booking.ScheduleListLimit,
		Clock:     clock,
		Logger:    serviceLogger(infra.Logger, "schedules"),
	}); err != nil {
		return Services{}, fmt.Errorf("build schedule service: %w", err)
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		if svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
			Payments:         reg.Payments(),
		}); err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}

// serviceLogger adapts zap to the event logger injected into services. Failure events carry an
// "error" field and are logged at warn level.
func serviceLogger(logger *zap.Logger, name string) services.Logger {
	named := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		if _, failed := fields["error"]; failed {
			named.Warn(event, zFields...)
			return
		}
		named.Info(event, zFields...)
	}
}
