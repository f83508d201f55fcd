package services

import (
	"context"
	"strings"
	"testing"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
)

type notificationFixture struct {
	store    *memStore
	whatsapp *stubWhatsApp
	email    *stubEmail
	svc      NotificationService
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	f := &notificationFixture{
		store:    newMemStore(),
		whatsapp: &stubWhatsApp{configured: true},
		email:    &stubEmail{configured: true},
	}
	f.store.putOrder(depositPaidOrder("ord-1", "user-1"))
	f.store.putUser(domain.User{
		ID:     "user-1",
		Name:   "Ana Souza",
		Email:  "ana@example.com",
		Phone:  "+5548999990000",
		Locale: "pt-BR",
	})
	svc, err := NewNotificationService(NotificationServiceDeps{
		Notifications: f.store.Notifications(),
		Users:         f.store.Users(),
		WhatsApp:      f.whatsapp,
		Email:         f.email,
		Clock:         fixedClock(depositNow),
		IDGenerator:   sequentialIDs("ntf"),
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	f.svc = svc
	return f
}

func TestNotifyRendersAndRecordsWhatsApp(t *testing.T) {
	f := newNotificationFixture(t)

	f.svc.Notify(context.Background(), NotificationRequest{
		OrderID:  "ord-1",
		UserID:   "user-1",
		Template: notifications.TemplateFinalPayment,
		Vars:     map[string]string{notifications.VarPaymentLink: "https://checkout.example/cs_1"},
		Amounts:  map[string]int64{notifications.VarAmount: 70000},
	})

	if len(f.whatsapp.sent) != 1 {
		t.Fatalf("expected one WhatsApp message, got %d", len(f.whatsapp.sent))
	}
	sent := f.whatsapp.sent[0]
	for _, want := range []string{"+5548999990000|", "Olá Ana!", "700,00", "https://checkout.example/cs_1"} {
		if !strings.Contains(sent, want) {
			t.Fatalf("expected %q in %q", want, sent)
		}
	}
	if len(f.email.sent) != 0 {
		t.Fatalf("expected no email without email content")
	}

	records := f.store.notificationList()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	record := records[0]
	if record.Status != domain.NotificationStatusSent || record.Channel != domain.NotificationChannelWhatsApp || record.Attempts != 1 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestNotifyUsesCustomerLocale(t *testing.T) {
	f := newNotificationFixture(t)
	f.store.putUser(domain.User{ID: "user-1", Name: "John Smith", Phone: "+15550001111", Locale: "en-US"})

	f.svc.Notify(context.Background(), NotificationRequest{
		OrderID:  "ord-1",
		UserID:   "user-1",
		Template: notifications.TemplateFinalPayment,
		Amounts:  map[string]int64{notifications.VarAmount: 70000},
	})
	if len(f.whatsapp.sent) != 1 || !strings.Contains(f.whatsapp.sent[0], "Hi John!") || !strings.Contains(f.whatsapp.sent[0], "700.00") {
		t.Fatalf("expected english message, got %v", f.whatsapp.sent)
	}
}

func TestNotifyEmailOnlyWithAttachment(t *testing.T) {
	f := newNotificationFixture(t)

	f.svc.Notify(context.Background(), NotificationRequest{
		OrderID:   "ord-1",
		UserID:    "user-1",
		Template:  notifications.TemplateInvoiceSent,
		EmailOnly: true,
		Email: &EmailContent{
			Subject:     "Nota fiscal",
			HTML:        "<p>NF 42</p>",
			Attachments: []notifications.Attachment{{Filename: "nf-42.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}},
		},
	})

	if len(f.whatsapp.sent) != 0 {
		t.Fatalf("EmailOnly must suppress WhatsApp")
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(f.email.sent))
	}
	email := f.email.sent[0]
	if email.To != "ana@example.com" || email.Subject != "Nota fiscal" || len(email.Attachments) != 1 {
		t.Fatalf("unexpected email %+v", email)
	}
	records := f.store.notificationList()
	if len(records) != 1 || records[0].Channel != domain.NotificationChannelEmail {
		t.Fatalf("expected one email record, got %+v", records)
	}
}

func TestNotifyRecordsDeliveryOutcomes(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*notificationFixture)
		want  domain.NotificationStatus
	}{
		{"sender error", func(f *notificationFixture) { f.whatsapp.err = errBoom }, domain.NotificationStatusFailed},
		{"sender not configured", func(f *notificationFixture) { f.whatsapp.configured = false }, domain.NotificationStatusSkipped},
		{"no phone", func(f *notificationFixture) {
			f.store.putUser(domain.User{ID: "user-1", Name: "Ana", Email: "ana@example.com"})
		}, domain.NotificationStatusSkipped},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newNotificationFixture(t)
			tc.setup(f)

			f.svc.Notify(context.Background(), NotificationRequest{
				OrderID:  "ord-1",
				UserID:   "user-1",
				Template: notifications.TemplateServiceCompleted,
			})

			records := f.store.notificationList()
			if len(records) != 1 {
				t.Fatalf("expected one record, got %d", len(records))
			}
			if records[0].Status != tc.want {
				t.Fatalf("expected %s, got %s (%s)", tc.want, records[0].Status, records[0].LastError)
			}
		})
	}
}

func TestNotifyUnknownUserRecordsNothing(t *testing.T) {
	f := newNotificationFixture(t)

	f.svc.Notify(context.Background(), NotificationRequest{
		OrderID:  "ord-1",
		UserID:   "user-404",
		Template: notifications.TemplateServiceCompleted,
	})
	if len(f.whatsapp.sent) != 0 || len(f.store.notificationList()) != 0 {
		t.Fatalf("expected nothing sent or recorded")
	}
}

func TestRetryFailedResendsAndGivesUp(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	repo := f.store.Notifications()
	for _, n := range []domain.Notification{
		{ID: "ntf-a", OrderID: "ord-1", Channel: domain.NotificationChannelWhatsApp, Recipient: "+5548999990000", Message: "hi", Status: domain.NotificationStatusFailed, Attempts: 1},
		{ID: "ntf-b", OrderID: "ord-1", Channel: domain.NotificationChannelEmail, Recipient: "ana@example.com", Subject: "s", Message: "m", Status: domain.NotificationStatusFailed, Attempts: maxNotificationAttempts},
		{ID: "ntf-c", OrderID: "ord-1", Channel: domain.NotificationChannelWhatsApp, Recipient: "+5548999990000", Message: "ok", Status: domain.NotificationStatusSent, Attempts: 1},
	} {
		if err := repo.Append(ctx, n); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	summary, err := f.svc.RetryFailed(ctx, 0)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if summary.Attempted != 1 || summary.Sent != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	byID := map[string]domain.Notification{}
	for _, n := range f.store.notificationList() {
		byID[n.ID] = n
	}
	if got := byID["ntf-a"]; got.Status != domain.NotificationStatusSent || got.Attempts != 2 {
		t.Fatalf("expected ntf-a resent, got %+v", got)
	}
	if got := byID["ntf-b"]; got.Status != domain.NotificationStatusSkipped {
		t.Fatalf("expected ntf-b given up, got %+v", got)
	}
	if len(f.email.sent) != 0 {
		t.Fatalf("exhausted email must not be resent")
	}
}
