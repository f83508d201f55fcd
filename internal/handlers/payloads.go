package handlers

import (
	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/storage"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/scheduling"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

type totalsPayload struct {
	Subtotal     int64 `json:"subtotal"`
	DiscountRate int   `json:"discount_rate_bp"`
	Discount     int64 `json:"discount"`
	Total        int64 `json:"total"`
	Deposit      int64 `json:"deposit"`
	Remainder    int64 `json:"remainder"`
}

type orderItemPayload struct {
	ServiceID     string `json:"service_id"`
	ServiceName   string `json:"service_name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	ScheduledDate string `json:"scheduled_date"`
	TeamID        string `json:"team_id"`
	TimeSlot      string `json:"time_slot"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Status        string             `json:"status"`
	PartySize     int                `json:"party_size"`
	Items         []orderItemPayload `json:"items"`
	Totals        totalsPayload      `json:"totals"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
	CreatedAt     string             `json:"created_at,omitempty"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
	DepositPaidAt string             `json:"deposit_paid_at,omitempty"`
	CompletedAt   string             `json:"completed_at,omitempty"`
	CanceledAt    string             `json:"canceled_at,omitempty"`
	RefundedAt    string             `json:"refunded_at,omitempty"`
}

type paymentPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Method        string `json:"method,omitempty"`
	Provider      string `json:"provider,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	PaymentLink   string `json:"payment_link,omitempty"`
	Note          string `json:"note,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	RefundedAt    string `json:"refunded_at,omitempty"`
}

type scheduleServicePayload struct {
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name"`
}

type schedulePayload struct {
	ID            string                   `json:"id"`
	OrderID       string                   `json:"order_id"`
	UserID        string                   `json:"user_id"`
	TeamID        string                   `json:"team_id"`
	ScheduledDate string                   `json:"scheduled_date"`
	TimeSlot      string                   `json:"time_slot"`
	Status        string                   `json:"status"`
	Notes         string                   `json:"notes,omitempty"`
	PartySize     int                      `json:"party_size"`
	Services      []scheduleServicePayload `json:"services"`
	CreatedAt     string                   `json:"created_at,omitempty"`
	UpdatedAt     string                   `json:"updated_at,omitempty"`
}

type operatingHoursPayload struct {
	DayOfWeek           int    `json:"day_of_week"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
}

type teamPayload struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Active         bool                    `json:"active"`
	MaxPartySize   int                     `json:"max_party_size"`
	OperatingHours []operatingHoursPayload `json:"operating_hours"`
}

type servicePayload struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Price             int64    `json:"price"`
	MaxPeople         int      `json:"max_people"`
	DurationMinutes   int      `json:"duration_minutes"`
	Active            bool     `json:"active"`
	RequiredDocuments []string `json:"required_documents"`
}

type invoicePayload struct {
	ID                string `json:"id"`
	OrderID           string `json:"order_id"`
	Number            string `json:"number"`
	Status            string `json:"status"`
	PDFURL            string `json:"pdf_url,omitempty"`
	XMLURL            string `json:"xml_url,omitempty"`
	DownloadURL       string `json:"download_url,omitempty"`
	DownloadExpiresAt string `json:"download_expires_at,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

type userPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	TaxID  string `json:"tax_id,omitempty"`
	Locale string `json:"locale,omitempty"`
	Role   string `json:"role"`
}

type availabilityPayload struct {
	TeamID         string   `json:"team_id"`
	TeamName       string   `json:"team_name"`
	AllSlots       []string `json:"all_slots"`
	AvailableSlots []string `json:"available_slots"`
	OccupiedSlots  []string `json:"occupied_slots"`
}

func buildTotals(t domain.OrderTotals) totalsPayload {
	return totalsPayload{
		Subtotal:     t.Subtotal,
		DiscountRate: t.DiscountRate,
		Discount:     t.Discount,
		Total:        t.Total,
		Deposit:      t.Deposit,
		Remainder:    t.Remainder,
	}
}

func buildOrderItems(items []domain.OrderItem) []orderItemPayload {
	out := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemPayload{
			ServiceID:     item.ServiceID,
			ServiceName:   item.ServiceName,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			ScheduledDate: item.ScheduledDate,
			TeamID:        item.TeamID,
			TimeSlot:      item.TimeSlot,
		})
	}
	return out
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PartySize:     order.PartySize,
		Items:         buildOrderItems(order.Items),
		Totals:        buildTotals(order.Totals),
		CancelReason:  order.CancelReason,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		DepositPaidAt: formatTimePtr(order.DepositPaidAt),
		CompletedAt:   formatTimePtr(order.CompletedAt),
		CanceledAt:    formatTimePtr(order.CanceledAt),
		RefundedAt:    formatTimePtr(order.RefundedAt),
	}
}

func buildPaymentPayload(p services.Payment) paymentPayload {
	return paymentPayload{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Type:          string(p.Type),
		Status:        string(p.Status),
		Amount:        p.Amount,
		Method:        p.Method,
		Provider:      p.Provider,
		TransactionID: p.TransactionID,
		PaymentLink:   p.PaymentLink,
		Note:          p.Note,
		CreatedAt:     formatTime(p.CreatedAt),
		RefundedAt:    formatTimePtr(p.RefundedAt),
	}
}

func buildPaymentList(list []services.Payment) []paymentPayload {
	out := make([]paymentPayload, 0, len(list))
	for _, p := range list {
		out = append(out, buildPaymentPayload(p))
	}
	return out
}

func buildSchedulePayload(s services.Schedule) schedulePayload {
	svcs := make([]scheduleServicePayload, 0, len(s.Services))
	for _, svc := range s.Services {
		svcs = append(svcs, scheduleServicePayload{ServiceID: svc.ServiceID, ServiceName: svc.ServiceName})
	}
	return schedulePayload{
		ID:            s.ID,
		OrderID:       s.OrderID,
		UserID:        s.UserID,
		TeamID:        s.TeamID,
		ScheduledDate: scheduling.FormatDate(s.ScheduledDate),
		TimeSlot:      s.TimeSlot,
		Status:        string(s.Status),
		Notes:         s.Notes,
		PartySize:     s.PartySize,
		Services:      svcs,
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

func buildScheduleList(list []services.Schedule) []schedulePayload {
	out := make([]schedulePayload, 0, len(list))
	for _, s := range list {
		out = append(out, buildSchedulePayload(s))
	}
	return out
}

func buildTeamPayload(team services.Team) teamPayload {
	hours := make([]operatingHoursPayload, 0, len(team.OperatingHours))
	for _, h := range team.OperatingHours {
		hours = append(hours, operatingHoursPayload(h))
	}
	return teamPayload{
		ID:             team.ID,
		Name:           team.Name,
		Active:         team.Active,
		MaxPartySize:   team.MaxPartySize,
		OperatingHours: hours,
	}
}

func buildServicePayload(svc services.TourService) servicePayload {
	docs := svc.RequiredDocuments
	if docs == nil {
		docs = []string{}
	}
	return servicePayload{
		ID:                svc.ID,
		Name:              svc.Name,
		Description:       svc.Description,
		Price:             svc.Price,
		MaxPeople:         svc.MaxPeople,
		DurationMinutes:   svc.DurationMinutes,
		Active:            svc.Active,
		RequiredDocuments: docs,
	}
}

func buildInvoicePayload(view services.InvoiceView) invoicePayload {
	payload := invoicePayload{
		ID:        view.Invoice.ID,
		OrderID:   view.Invoice.OrderID,
		Number:    view.Invoice.Number,
		Status:    view.Invoice.Status,
		PDFURL:    view.Invoice.PDFURL,
		XMLURL:    view.Invoice.XMLURL,
		CreatedAt: formatTime(view.Invoice.CreatedAt),
	}
	if download := view.Download; download != nil {
		payload.DownloadURL, payload.DownloadExpiresAt = signedURLFields(*download)
	}
	return payload
}

func signedURLFields(url storage.SignedURL) (string, string) {
	return url.URL, formatTime(url.ExpiresAt)
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Phone:  user.Phone,
		TaxID:  user.TaxID,
		Locale: user.Locale,
		Role:   user.Role,
	}
}

func buildAvailabilityPayload(view services.TeamAvailability) availabilityPayload {
	return availabilityPayload{
		TeamID:         view.TeamID,
		TeamName:       view.TeamName,
		AllSlots:       nonNil(view.AllSlots),
		AvailableSlots: nonNil(view.AvailableSlots),
		OccupiedSlots:  nonNil(view.OccupiedSlots),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
