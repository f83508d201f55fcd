package firestore

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

const (
	teamsCollection         = "teams"
	servicesCollection      = "services"
	usersCollection         = "users"
	ordersCollection        = "orders"
	paymentsCollection      = "payments"
	schedulesCollection     = "schedules"
	slotLocksCollection     = "slotLocks"
	notificationsCollection = "notifications"
	invoicesCollection      = "invoices"

	dateLayout = "2006-01-02"
)

// slotLockID is the deterministic id of the document that reserves one team slot on one day.
func slotLockID(teamID, date, slot string) string {
	return fmt.Sprintf("%s_%s_%s", strings.TrimSpace(teamID), strings.TrimSpace(date), strings.ReplaceAll(strings.TrimSpace(slot), ":", ""))
}

type operatingHoursDocument struct {
	DayOfWeek           int    `firestore:"dayOfWeek"`
	StartTime           string `firestore:"startTime"`
	EndTime             string `firestore:"endTime"`
	SlotDurationMinutes int    `firestore:"slotDuration"`
}

type teamDocument struct {
	Name           string                   `firestore:"name"`
	Active         bool                     `firestore:"active"`
	MaxPartySize   int                      `firestore:"maxPartySize"`
	OperatingHours []operatingHoursDocument `firestore:"operatingHours"`
	CreatedAt      time.Time                `firestore:"createdAt"`
	UpdatedAt      time.Time                `firestore:"updatedAt"`
}

func newTeamDocument(team domain.Team) teamDocument {
	hours := make([]operatingHoursDocument, len(team.OperatingHours))
	for i, rule := range team.OperatingHours {
		hours[i] = operatingHoursDocument{
			DayOfWeek:           rule.DayOfWeek,
			StartTime:           strings.TrimSpace(rule.StartTime),
			EndTime:             strings.TrimSpace(rule.EndTime),
			SlotDurationMinutes: rule.SlotDurationMinutes,
		}
	}
	return teamDocument{
		Name:           strings.TrimSpace(team.Name),
		Active:         team.Active,
		MaxPartySize:   team.MaxPartySize,
		OperatingHours: hours,
		CreatedAt:      team.CreatedAt.UTC(),
		UpdatedAt:      team.UpdatedAt.UTC(),
	}
}

func (d teamDocument) toDomain(id string) domain.Team {
	hours := make([]domain.OperatingHours, len(d.OperatingHours))
	for i, rule := range d.OperatingHours {
		hours[i] = domain.OperatingHours{
			DayOfWeek:           rule.DayOfWeek,
			StartTime:           rule.StartTime,
			EndTime:             rule.EndTime,
			SlotDurationMinutes: rule.SlotDurationMinutes,
		}
	}
	return domain.Team{
		ID:             id,
		Name:           d.Name,
		Active:         d.Active,
		MaxPartySize:   d.MaxPartySize,
		OperatingHours: hours,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type serviceDocument struct {
	Name              string    `firestore:"name"`
	Description       string    `firestore:"description,omitempty"`
	Price             int64     `firestore:"price"`
	MaxPeople         int       `firestore:"maxPeople"`
	DurationMinutes   int       `firestore:"durationMinutes"`
	Active            bool      `firestore:"active"`
	RequiredDocuments []string  `firestore:"requiredDocuments,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func newServiceDocument(svc domain.Service) serviceDocument {
	return serviceDocument{
		Name:              strings.TrimSpace(svc.Name),
		Description:       strings.TrimSpace(svc.Description),
		Price:             svc.Price,
		MaxPeople:         svc.MaxPeople,
		DurationMinutes:   svc.DurationMinutes,
		Active:            svc.Active,
		RequiredDocuments: svc.RequiredDocuments,
		CreatedAt:         svc.CreatedAt.UTC(),
		UpdatedAt:         svc.UpdatedAt.UTC(),
	}
}

func (d serviceDocument) toDomain(id string) domain.Service {
	return domain.Service{
		ID:                id,
		Name:              d.Name,
		Description:       d.Description,
		Price:             d.Price,
		MaxPeople:         d.MaxPeople,
		DurationMinutes:   d.DurationMinutes,
		Active:            d.Active,
		RequiredDocuments: d.RequiredDocuments,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type orderItemDocument struct {
	ServiceID     string `firestore:"serviceId"`
	ServiceName   string `firestore:"serviceName"`
	Quantity      int    `firestore:"quantity"`
	UnitPrice     int64  `firestore:"unitPrice"`
	ScheduledDate string `firestore:"scheduledDate"`
	TeamID        string `firestore:"teamId"`
	TimeSlot      string `firestore:"timeSlot"`
}

type orderTotalsDocument struct {
	Subtotal     int64 `firestore:"subtotal"`
	DiscountRate int   `firestore:"discountRate"`
	Discount     int64 `firestore:"discount"`
	Total        int64 `firestore:"total"`
	Deposit      int64 `firestore:"depositAmount"`
	Remainder    int64 `firestore:"remainingAmount"`
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	Items         []orderItemDocument `firestore:"items"`
	Totals        orderTotalsDocument `firestore:"totals"`
	Status        string              `firestore:"status"`
	PartySize     int                 `firestore:"numberOfPeople"`
	CancelReason  string              `firestore:"cancelReason,omitempty"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	DepositPaidAt *time.Time          `firestore:"depositPaidAt,omitempty"`
	CompletedAt   *time.Time          `firestore:"completedAt,omitempty"`
	CanceledAt    *time.Time          `firestore:"canceledAt,omitempty"`
	RefundedAt    *time.Time          `firestore:"refundedAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ServiceID:     strings.TrimSpace(item.ServiceID),
			ServiceName:   strings.TrimSpace(item.ServiceName),
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			ScheduledDate: strings.TrimSpace(item.ScheduledDate),
			TeamID:        strings.TrimSpace(item.TeamID),
			TimeSlot:      strings.TrimSpace(item.TimeSlot),
		}
	}
	return orderDocument{
		UserID: strings.TrimSpace(order.UserID),
		Items:  items,
		Totals: orderTotalsDocument{
			Subtotal:     order.Totals.Subtotal,
			DiscountRate: order.Totals.DiscountRate,
			Discount:     order.Totals.Discount,
			Total:        order.Totals.Total,
			Deposit:      order.Totals.Deposit,
			Remainder:    order.Totals.Remainder,
		},
		Status:        string(order.Status),
		PartySize:     order.PartySize,
		CancelReason:  strings.TrimSpace(order.CancelReason),
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
		DepositPaidAt: utcPtr(order.DepositPaidAt),
		CompletedAt:   utcPtr(order.CompletedAt),
		CanceledAt:    utcPtr(order.CanceledAt),
		RefundedAt:    utcPtr(order.RefundedAt),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ServiceID:     item.ServiceID,
			ServiceName:   item.ServiceName,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			ScheduledDate: item.ScheduledDate,
			TeamID:        item.TeamID,
			TimeSlot:      item.TimeSlot,
		}
	}
	return domain.Order{
		ID:     id,
		UserID: d.UserID,
		Items:  items,
		Totals: domain.OrderTotals{
			Subtotal:     d.Totals.Subtotal,
			DiscountRate: d.Totals.DiscountRate,
			Discount:     d.Totals.Discount,
			Total:        d.Totals.Total,
			Deposit:      d.Totals.Deposit,
			Remainder:    d.Totals.Remainder,
		},
		Status:        domain.OrderStatus(d.Status),
		PartySize:     d.PartySize,
		CancelReason:  d.CancelReason,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		DepositPaidAt: d.DepositPaidAt,
		CompletedAt:   d.CompletedAt,
		CanceledAt:    d.CanceledAt,
		RefundedAt:    d.RefundedAt,
	}
}

type paymentDocument struct {
	OrderID       string     `firestore:"orderId"`
	Type          string     `firestore:"type"`
	Status        string     `firestore:"status"`
	Amount        int64      `firestore:"amount"`
	Method        string     `firestore:"method,omitempty"`
	Provider      string     `firestore:"provider,omitempty"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	PaymentLink   string     `firestore:"paymentLink,omitempty"`
	Note          string     `firestore:"note,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
	RefundedAt    *time.Time `firestore:"refundedAt,omitempty"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:       strings.TrimSpace(payment.OrderID),
		Type:          string(payment.Type),
		Status:        string(payment.Status),
		Amount:        payment.Amount,
		Method:        strings.TrimSpace(payment.Method),
		Provider:      strings.TrimSpace(payment.Provider),
		TransactionID: strings.TrimSpace(payment.TransactionID),
		PaymentLink:   strings.TrimSpace(payment.PaymentLink),
		Note:          strings.TrimSpace(payment.Note),
		CreatedAt:     payment.CreatedAt.UTC(),
		UpdatedAt:     payment.UpdatedAt.UTC(),
		RefundedAt:    utcPtr(payment.RefundedAt),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:            id,
		OrderID:       d.OrderID,
		Type:          domain.PaymentType(d.Type),
		Status:        domain.PaymentStatus(d.Status),
		Amount:        d.Amount,
		Method:        d.Method,
		Provider:      d.Provider,
		TransactionID: d.TransactionID,
		PaymentLink:   d.PaymentLink,
		Note:          d.Note,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		RefundedAt:    d.RefundedAt,
	}
}

type scheduleServiceDocument struct {
	ServiceID   string `firestore:"serviceId"`
	ServiceName string `firestore:"serviceName"`
}

type scheduleDocument struct {
	OrderID       string                    `firestore:"orderId"`
	UserID        string                    `firestore:"userId"`
	TeamID        string                    `firestore:"teamId"`
	ScheduledDate time.Time                 `firestore:"scheduledDate"`
	Day           string                    `firestore:"day"`
	TimeSlot      string                    `firestore:"timeSlot"`
	Status        string                    `firestore:"status"`
	Notes         string                    `firestore:"notes,omitempty"`
	PartySize     int                       `firestore:"numberOfPeople"`
	Services      []scheduleServiceDocument `firestore:"services"`
	CreatedAt     time.Time                 `firestore:"createdAt"`
	UpdatedAt     time.Time                 `firestore:"updatedAt"`
}

func newScheduleDocument(schedule domain.Schedule) scheduleDocument {
	services := make([]scheduleServiceDocument, len(schedule.Services))
	for i, svc := range schedule.Services {
		services[i] = scheduleServiceDocument{ServiceID: svc.ServiceID, ServiceName: svc.ServiceName}
	}
	return scheduleDocument{
		OrderID:       strings.TrimSpace(schedule.OrderID),
		UserID:        strings.TrimSpace(schedule.UserID),
		TeamID:        strings.TrimSpace(schedule.TeamID),
		ScheduledDate: schedule.ScheduledDate,
		Day:           schedule.ScheduledDate.Format(dateLayout),
		TimeSlot:      strings.TrimSpace(schedule.TimeSlot),
		Status:        string(schedule.Status),
		Notes:         schedule.Notes,
		PartySize:     schedule.PartySize,
		Services:      services,
		CreatedAt:     schedule.CreatedAt.UTC(),
		UpdatedAt:     schedule.UpdatedAt.UTC(),
	}
}

func (d scheduleDocument) toDomain(id string) domain.Schedule {
	services := make([]domain.ScheduleService, len(d.Services))
	for i, svc := range d.Services {
		services[i] = domain.ScheduleService{ServiceID: svc.ServiceID, ServiceName: svc.ServiceName}
	}
	return domain.Schedule{
		ID:            id,
		OrderID:       d.OrderID,
		UserID:        d.UserID,
		TeamID:        d.TeamID,
		ScheduledDate: d.ScheduledDate,
		TimeSlot:      d.TimeSlot,
		Status:        domain.ScheduleStatus(d.Status),
		Notes:         d.Notes,
		PartySize:     d.PartySize,
		Services:      services,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (d scheduleDocument) lockID() string {
	return slotLockID(d.TeamID, d.Day, d.TimeSlot)
}

type slotLockDocument struct {
	ScheduleID string    `firestore:"scheduleId"`
	OrderID    string    `firestore:"orderId"`
	TeamID     string    `firestore:"teamId"`
	Day        string    `firestore:"day"`
	TimeSlot   string    `firestore:"timeSlot"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type notificationDocument struct {
	OrderID   string    `firestore:"orderId"`
	Channel   string    `firestore:"channel"`
	Template  string    `firestore:"template"`
	Recipient string    `firestore:"recipient"`
	Subject   string    `firestore:"subject,omitempty"`
	Message   string    `firestore:"message"`
	Status    string    `firestore:"status"`
	Attempts  int       `firestore:"attempts"`
	LastError string    `firestore:"lastError,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newNotificationDocument(n domain.Notification) notificationDocument {
	return notificationDocument{
		OrderID:   strings.TrimSpace(n.OrderID),
		Channel:   string(n.Channel),
		Template:  n.Template,
		Recipient: strings.TrimSpace(n.Recipient),
		Subject:   n.Subject,
		Message:   n.Message,
		Status:    string(n.Status),
		Attempts:  n.Attempts,
		LastError: n.LastError,
		CreatedAt: n.CreatedAt.UTC(),
		UpdatedAt: n.UpdatedAt.UTC(),
	}
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:        id,
		OrderID:   d.OrderID,
		Channel:   domain.NotificationChannel(d.Channel),
		Template:  d.Template,
		Recipient: d.Recipient,
		Subject:   d.Subject,
		Message:   d.Message,
		Status:    domain.NotificationStatus(d.Status),
		Attempts:  d.Attempts,
		LastError: d.LastError,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type invoiceDocument struct {
	OrderID       string    `firestore:"orderId"`
	ExternalID    string    `firestore:"externalId"`
	Number        string    `firestore:"number,omitempty"`
	Status        string    `firestore:"status"`
	PDFURL        string    `firestore:"pdfUrl,omitempty"`
	XMLURL        string    `firestore:"xmlUrl,omitempty"`
	ArchiveObject string    `firestore:"archiveObject,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func newInvoiceDocument(inv domain.Invoice) invoiceDocument {
	return invoiceDocument{
		OrderID:       strings.TrimSpace(inv.OrderID),
		ExternalID:    strings.TrimSpace(inv.ExternalID),
		Number:        strings.TrimSpace(inv.Number),
		Status:        strings.TrimSpace(inv.Status),
		PDFURL:        strings.TrimSpace(inv.PDFURL),
		XMLURL:        strings.TrimSpace(inv.XMLURL),
		ArchiveObject: strings.TrimSpace(inv.ArchiveObject),
		CreatedAt:     inv.CreatedAt.UTC(),
	}
}

func (d invoiceDocument) toDomain(id string) domain.Invoice {
	return domain.Invoice{
		ID:            id,
		OrderID:       d.OrderID,
		ExternalID:    d.ExternalID,
		Number:        d.Number,
		Status:        d.Status,
		PDFURL:        d.PDFURL,
		XMLURL:        d.XMLURL,
		ArchiveObject: d.ArchiveObject,
		CreatedAt:     d.CreatedAt,
	}
}

func decodeSnapshot[T any](snap *firestore.DocumentSnapshot, kind string) (T, error) {
	var doc T
	if err := snap.DataTo(&doc); err != nil {
		return doc, fmt.Errorf("decode %s %s: %w", kind, snap.Ref.ID, err)
	}
	return doc, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
