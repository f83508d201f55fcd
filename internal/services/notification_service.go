package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/textutil"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

const (
	defaultNotificationTimeout = 10 * time.Second
	defaultRetryBatch          = 50
	maxRetryBatch              = 200
	// maxNotificationAttempts stops retrying a message after this many sends.
	maxNotificationAttempts = 5
)

// NotificationServiceDeps bundles collaborators required by the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Users         repositories.UserRepository
	WhatsApp      notifications.WhatsAppSender
	Email         notifications.EmailSender
	// Timeout bounds every individual send.
	Timeout     time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	records  repositories.NotificationRepository
	users    repositories.UserRepository
	whatsapp notifications.WhatsAppSender
	email    notifications.EmailSender
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ NotificationService = (*notificationService)(nil)

// NewNotificationService constructs the customer notification service.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Users == nil {
		return nil, errors.New("notification service: user repository is required")
	}
	return &notificationService{
		records:  deps.Notifications,
		users:    deps.Users,
		whatsapp: deps.WhatsApp,
		email:    deps.Email,
		timeout:  durationOrDefault(deps.Timeout, defaultNotificationTimeout),
		now:      utcClock(deps.Clock),
		newID:    idGeneratorOrDefault(deps.IDGenerator),
		logger:   loggerOrNoop(deps.Logger),
	}, nil
}

// Notify renders the template in the customer's locale and sends it over WhatsApp, plus email when
// requested. Every outcome is recorded under the order and nothing is returned to the caller.
func (s *notificationService) Notify(ctx context.Context, req NotificationRequest) {
	fields := map[string]any{"orderId": req.OrderID, "template": string(req.Template)}

	user, err := s.users.FindByID(ctx, strings.TrimSpace(req.UserID))
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "notification.user_lookup_failed", fields)
		return
	}
	locale := notifications.MatchLocale(user.Locale).String()

	vars := make(map[string]string, len(req.Vars)+len(req.Amounts)+1)
	vars[notifications.VarName] = firstName(user.Name)
	for key, value := range textutil.NormalizeStringMap(req.Vars) {
		vars[key] = value
	}
	for key, centavos := range req.Amounts {
		vars[key] = notifications.FormatAmount(centavos, locale)
	}
	body, err := notifications.Render(req.Template, locale, vars)
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "notification.render_failed", fields)
		return
	}

	if !req.EmailOnly {
		s.record(ctx, s.sendWhatsApp(ctx, domain.Notification{
			OrderID:   req.OrderID,
			Channel:   domain.NotificationChannelWhatsApp,
			Template:  string(req.Template),
			Recipient: user.Phone,
			Message:   body,
		}))
	}

	if req.Email != nil {
		s.record(ctx, s.sendEmail(ctx, domain.Notification{
			OrderID:   req.OrderID,
			Channel:   domain.NotificationChannelEmail,
			Template:  string(req.Template),
			Recipient: user.Email,
			Subject:   req.Email.Subject,
			Message:   req.Email.HTML,
		}, req.Email.Attachments))
	}
}

// RetryFailed re-sends FAILED notifications. Attachments are not stored, so retried emails go out
// without them.
func (s *notificationService) RetryFailed(ctx context.Context, limit int) (RetrySummary, error) {
	if s.records == nil {
		return RetrySummary{}, errors.New("notification service: notification repository not configured")
	}
	switch {
	case limit <= 0:
		limit = defaultRetryBatch
	case limit > maxRetryBatch:
		limit = maxRetryBatch
	}
	failed, err := s.records.ListFailed(ctx, limit)
	if err != nil {
		return RetrySummary{}, mapRepositoryError(err, nil, nil)
	}

	var summary RetrySummary
	for _, notification := range failed {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if notification.Attempts >= maxNotificationAttempts {
			notification.Status = domain.NotificationStatusSkipped
			notification.UpdatedAt = s.now()
			s.update(ctx, notification)
			continue
		}
		summary.Attempted++
		var result domain.Notification
		switch notification.Channel {
		case domain.NotificationChannelEmail:
			result = s.sendEmail(ctx, notification, nil)
		default:
			result = s.sendWhatsApp(ctx, notification)
		}
		if result.Status == domain.NotificationStatusFailed {
			summary.Failed++
		} else {
			summary.Sent++
		}
		s.update(ctx, result)
	}
	s.logger(ctx, "notification.retry.completed", map[string]any{
		"attempted": summary.Attempted,
		"sent":      summary.Sent,
		"failed":    summary.Failed,
	})
	return summary, nil
}

func (s *notificationService) sendWhatsApp(ctx context.Context, n domain.Notification) domain.Notification {
	n.Attempts++
	if strings.TrimSpace(n.Recipient) == "" {
		n.Status = domain.NotificationStatusSkipped
		n.LastError = "customer has no phone number"
		return n
	}
	if s.whatsapp == nil {
		n.Status = domain.NotificationStatusSkipped
		n.LastError = "whatsapp sender not configured"
		return n
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.whatsapp.SendWhatsApp(sendCtx, n.Recipient, n.Message); err != nil {
		n.Status = domain.NotificationStatusFailed
		n.LastError = err.Error()
		return n
	}
	n.Status = deliveredStatus(s.whatsapp.Configured())
	n.LastError = ""
	return n
}

func (s *notificationService) sendEmail(ctx context.Context, n domain.Notification, attachments []notifications.Attachment) domain.Notification {
	n.Attempts++
	if strings.TrimSpace(n.Recipient) == "" {
		n.Status = domain.NotificationStatusSkipped
		n.LastError = "customer has no email"
		return n
	}
	if s.email == nil {
		n.Status = domain.NotificationStatusSkipped
		n.LastError = "email sender not configured"
		return n
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.email.SendEmail(sendCtx, notifications.Email{
		To:          n.Recipient,
		Subject:     n.Subject,
		HTML:        n.Message,
		Attachments: attachments,
	})
	if err != nil {
		n.Status = domain.NotificationStatusFailed
		n.LastError = err.Error()
		return n
	}
	n.Status = deliveredStatus(s.email.Configured())
	n.LastError = ""
	return n
}

func (s *notificationService) record(ctx context.Context, n domain.Notification) {
	fields := map[string]any{
		"orderId":  n.OrderID,
		"channel":  string(n.Channel),
		"template": n.Template,
		"status":   string(n.Status),
	}
	if n.LastError != "" {
		fields["error"] = n.LastError
	}
	s.logger(ctx, "notification.sent", fields)

	if s.records == nil || strings.TrimSpace(n.OrderID) == "" {
		return
	}
	now := s.now()
	n.ID = s.newID()
	n.CreatedAt = now
	n.UpdatedAt = now
	if err := s.records.Append(ctx, n); err != nil {
		s.logger(ctx, "notification.record_failed", map[string]any{"orderId": n.OrderID, "error": err.Error()})
	}
}

func (s *notificationService) update(ctx context.Context, n domain.Notification) {
	n.UpdatedAt = s.now()
	if err := s.records.Update(ctx, n); err != nil {
		s.logger(ctx, "notification.record_failed", map[string]any{
			"orderId":        n.OrderID,
			"notificationId": n.ID,
			"error":          err.Error(),
		})
	}
}

func deliveredStatus(configured bool) domain.NotificationStatus {
	if configured {
		return domain.NotificationStatusSent
	}
	return domain.NotificationStatusSkipped
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
