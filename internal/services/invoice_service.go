package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/invoicing"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/storage"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

var (
	// ErrInvoiceInvalidInput signals a malformed issuance request.
	ErrInvoiceInvalidInput = errors.New("invoice: invalid input")
	// ErrInvoiceOrderNotFound indicates the order does not exist.
	ErrInvoiceOrderNotFound = errors.New("invoice: order not found")
	// ErrInvoiceNotFound indicates no invoice was issued for the order.
	ErrInvoiceNotFound = errors.New("invoice: not found")
	// ErrInvoicePermissionDenied indicates the actor may not issue or read the invoice.
	ErrInvoicePermissionDenied = errors.New("invoice: permission denied")
	// ErrInvoiceInvalidState indicates the order is not eligible for invoicing.
	ErrInvoiceInvalidState = errors.New("invoice: invalid order state")
	// ErrInvoiceAlreadyIssued indicates the order already has an invoice.
	ErrInvoiceAlreadyIssued = errors.New("invoice: already issued")
	// ErrInvoiceIssuerUnavailable indicates the invoicing authority call failed.
	ErrInvoiceIssuerUnavailable = errors.New("invoice: issuer unavailable")
)

// InvoiceArchive stores invoice PDFs and signs download links. storage.InvoiceArchive implements it.
type InvoiceArchive interface {
	Store(ctx context.Context, file storage.InvoiceFile) (string, error)
	DownloadURL(ctx context.Context, object string, identity *auth.Identity, ownerID string) (storage.SignedURL, error)
}

var _ InvoiceArchive = (*storage.InvoiceArchive)(nil)

// InvoiceServiceDeps bundles collaborators required by the invoice service.
type InvoiceServiceDeps struct {
	Orders        repositories.OrderRepository
	Users         repositories.UserRepository
	Invoices      repositories.InvoiceRepository
	Issuer        invoicing.Issuer
	Archive       InvoiceArchive
	Notifications NotificationService
	// Timeout bounds the issuer calls.
	Timeout     time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	orders        repositories.OrderRepository
	users         repositories.UserRepository
	invoices      repositories.InvoiceRepository
	issuer        invoicing.Issuer
	archive       InvoiceArchive
	notifications NotificationService
	timeout       time.Duration
	now           func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

var _ InvoiceService = (*invoiceService)(nil)

// NewInvoiceService constructs the invoice service.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("invoice service: order repository is required")
	case deps.Users == nil:
		return nil, errors.New("invoice service: user repository is required")
	case deps.Invoices == nil:
		return nil, errors.New("invoice service: invoice repository is required")
	case deps.Issuer == nil:
		return nil, errors.New("invoice service: issuer is required")
	}
	return &invoiceService{
		orders:        deps.Orders,
		users:         deps.Users,
		invoices:      deps.Invoices,
		issuer:        deps.Issuer,
		archive:       deps.Archive,
		notifications: deps.Notifications,
		timeout:       durationOrDefault(deps.Timeout, 30*time.Second),
		now:           utcClock(deps.Clock),
		newID:         idGeneratorOrDefault(deps.IDGenerator),
		logger:        loggerOrNoop(deps.Logger),
	}, nil
}

// Issue emits the order's invoice, archives its PDF and delivers it. Archiving and delivery are
// best-effort; the invoice record is stored once the authority accepted it.
func (s *invoiceService) Issue(ctx context.Context, cmd IssueInvoiceCommand) (InvoiceView, error) {
	if cmd.Actor == nil || !cmd.Actor.IsOperator() {
		return InvoiceView{}, ErrInvoicePermissionDenied
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return InvoiceView{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}
	delivery := cmd.Delivery
	switch delivery {
	case "":
		delivery = InvoiceDeliveryBoth
	case InvoiceDeliveryEmail, InvoiceDeliveryWhatsApp, InvoiceDeliveryBoth:
	default:
		return InvoiceView{}, fmt.Errorf("%w: unknown delivery %q", ErrInvoiceInvalidInput, cmd.Delivery)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return InvoiceView{}, mapRepositoryError(err, ErrInvoiceOrderNotFound, nil)
	}
	if order.Status != domain.OrderStatusCompleted && !order.Status.AwaitsFinalPayment() {
		return InvoiceView{}, fmt.Errorf("%w: order is %s", ErrInvoiceInvalidState, order.Status)
	}
	if existing, err := s.invoices.FindLatestByOrder(ctx, orderID); err == nil {
		return InvoiceView{}, fmt.Errorf("%w: invoice %s", ErrInvoiceAlreadyIssued, existing.Number)
	} else if !isNotFound(err) {
		return InvoiceView{}, mapRepositoryError(err, nil, nil)
	}

	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		if isNotFound(err) {
			return InvoiceView{}, fmt.Errorf("%w: customer profile is missing", ErrInvoiceInvalidState)
		}
		return InvoiceView{}, mapRepositoryError(err, nil, nil)
	}

	issueCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.issuer.Issue(issueCtx, invoiceRequest(order, user))
	cancel()
	if err != nil {
		if errors.Is(err, invoicing.ErrInvalidRequest) {
			return InvoiceView{}, fmt.Errorf("%w: %v", ErrInvoiceInvalidInput, err)
		}
		s.logger(ctx, "invoice.issue_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		return InvoiceView{}, fmt.Errorf("%w: %v", ErrInvoiceIssuerUnavailable, err)
	}

	now := s.now()
	invoice := Invoice{
		ID:         s.newID(),
		OrderID:    orderID,
		ExternalID: result.ExternalID,
		Number:     result.Number,
		Status:     result.Status,
		PDFURL:     result.PDFURL,
		XMLURL:     result.XMLURL,
		CreatedAt:  now,
	}
	pdf := s.archivePDF(ctx, &invoice)
	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return InvoiceView{}, mapRepositoryError(err, ErrInvoiceOrderNotFound, ErrInvoiceAlreadyIssued)
	}
	s.logger(ctx, "invoice.issued", map[string]any{
		"orderId":  orderID,
		"number":   invoice.Number,
		"mock":     s.issuer.Mock(),
		"archived": invoice.ArchiveObject != "",
		"actorId":  actorID(cmd.Actor),
	})

	s.deliver(ctx, order, user, invoice, pdf, delivery)

	view := InvoiceView{Invoice: invoice}
	view.Download = s.signedURL(ctx, invoice, cmd.Actor, order.UserID)
	return view, nil
}

// GetForOrder returns the latest invoice with a download link for the owner or an operator.
func (s *invoiceService) GetForOrder(ctx context.Context, orderID string, actor *Actor) (InvoiceView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return InvoiceView{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return InvoiceView{}, mapRepositoryError(err, ErrInvoiceOrderNotFound, nil)
	}
	if !ownerOrOperator(actor, order.UserID) {
		return InvoiceView{}, ErrInvoicePermissionDenied
	}
	invoice, err := s.invoices.FindLatestByOrder(ctx, orderID)
	if err != nil {
		return InvoiceView{}, mapRepositoryError(err, ErrInvoiceNotFound, nil)
	}
	return InvoiceView{Invoice: invoice, Download: s.signedURL(ctx, invoice, actor, order.UserID)}, nil
}

func (s *invoiceService) archivePDF(ctx context.Context, invoice *Invoice) []byte {
	if s.issuer.Mock() || invoice.PDFURL == "" {
		return nil
	}
	downloadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	pdf, err := s.issuer.DownloadPDF(downloadCtx, invoice.PDFURL)
	cancel()
	if err != nil {
		s.logger(ctx, "invoice.pdf_download_failed", map[string]any{"orderId": invoice.OrderID, "error": err.Error()})
		return nil
	}
	if s.archive == nil {
		return pdf
	}
	object, err := s.archive.Store(ctx, storage.InvoiceFile{
		OrderID:  invoice.OrderID,
		Number:   invoice.Number,
		IssuedAt: invoice.CreatedAt,
		PDF:      pdf,
	})
	if err != nil {
		s.logger(ctx, "invoice.archive_failed", map[string]any{"orderId": invoice.OrderID, "error": err.Error()})
		return pdf
	}
	invoice.ArchiveObject = object
	return pdf
}

func (s *invoiceService) signedURL(ctx context.Context, invoice Invoice, actor *Actor, ownerID string) *storage.SignedURL {
	if s.archive == nil || invoice.ArchiveObject == "" {
		return nil
	}
	signed, err := s.archive.DownloadURL(ctx, invoice.ArchiveObject, actor, ownerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotConfigured) {
			s.logger(ctx, "invoice.sign_failed", map[string]any{"orderId": invoice.OrderID, "error": err.Error()})
		}
		return nil
	}
	return &signed
}

func (s *invoiceService) deliver(ctx context.Context, order Order, user User, invoice Invoice, pdf []byte, delivery InvoiceDelivery) {
	if s.notifications == nil {
		return
	}
	req := NotificationRequest{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Template: notifications.TemplateInvoiceSent,
		Vars: map[string]string{
			notifications.VarOrderNumber:   shortOrderNumber(order.ID),
			notifications.VarInvoiceNumber: invoice.Number,
			notifications.VarDeliveryNote:  invoice.PDFURL,
		},
		Amounts:   map[string]int64{notifications.VarAmount: order.Totals.Total},
		EmailOnly: delivery == InvoiceDeliveryEmail,
	}
	if delivery == InvoiceDeliveryEmail || delivery == InvoiceDeliveryBoth {
		content := &EmailContent{
			Subject: fmt.Sprintf("Nota Fiscal - Pedido #%s", shortOrderNumber(order.ID)),
			HTML:    invoiceEmailHTML(user, order, invoice),
		}
		if len(pdf) > 0 {
			content.Attachments = []notifications.Attachment{{
				Filename:    fmt.Sprintf("nota-fiscal-%s.pdf", invoice.Number),
				ContentType: "application/pdf",
				Content:     pdf,
			}}
		}
		req.Email = content
	}
	runDetached(ctx, defaultSideEffectTimeout, func(ctx context.Context) {
		s.notifications.Notify(ctx, req)
	})
}

func invoiceRequest(order Order, user User) invoicing.Request {
	items := make([]invoicing.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, invoicing.Item{
			Description: item.ServiceName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return invoicing.Request{
		Reference:     order.ID,
		CustomerName:  user.Name,
		CustomerTaxID: user.TaxID,
		CustomerEmail: user.Email,
		Items:         items,
		Total:         order.Totals.Total,
	}
}

func invoiceEmailHTML(user User, order Order, invoice Invoice) string {
	var b strings.Builder
	b.WriteString("<p>Olá ")
	b.WriteString(html.EscapeString(firstName(user.Name)))
	b.WriteString(",</p>")
	fmt.Fprintf(&b, "<p>Sua Nota Fiscal referente ao pedido <strong>#%s</strong> foi emitida.</p>", html.EscapeString(shortOrderNumber(order.ID)))
	fmt.Fprintf(&b, "<p>Número: <strong>%s</strong><br>Valor: <strong>%s</strong></p>",
		html.EscapeString(invoice.Number),
		html.EscapeString(notifications.FormatAmount(order.Totals.Total, user.Locale)))
	if invoice.PDFURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Baixar PDF</a></p>`, html.EscapeString(invoice.PDFURL))
	}
	b.WriteString("<p>Obrigado pela preferência!</p>")
	return b.String()
}
