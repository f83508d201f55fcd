package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripePaymentIntentAPI
	refunds  stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	// LinkTTL bounds how long a hosted checkout link stays payable.
	LinkTTL time.Duration
	Clients *stripeClients
}

// StripeProvider implements Provider with PaymentIntents for charges and Checkout Sessions for links.
type StripeProvider struct {
	api     stripeClients
	account string
	linkTTL time.Duration
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			intents:  sc.PaymentIntents,
			refunds:  sc.Refunds,
		}
	}
	if clients.sessions == nil || clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	linkTTL := cfg.LinkTTL
	if linkTTL <= 0 {
		linkTTL = 24 * time.Hour
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		linkTTL: linkTTL,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Charge creates and confirms a PaymentIntent against the supplied payment method token.
func (p *StripeProvider) Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(req.Token) == "" {
		return PaymentDetails{}, errors.New("stripe: payment method token is required")
	}
	if req.Amount <= 0 {
		return PaymentDetails{}, errors.New("stripe: amount must be positive")
	}

	reference := FormatReference(req.OrderID, req.Type)
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(defaultString(req.Currency, CurrencyBRL))),
		PaymentMethod: stripe.String(strings.TrimSpace(req.Token)),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: map[string]string{
			ExternalReferenceKey: reference,
			"orderId":            strings.TrimSpace(req.OrderID),
			"paymentType":        strings.ToUpper(req.Type),
		},
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	if email := strings.TrimSpace(req.PayerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	p.applyCommon(ctx, &params.Params, req.IdempotencyKey)
	params.AddExpand("latest_charge")

	intent, err := p.api.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			p.logger(ctx, "payments.stripe.charge.declined", map[string]any{
				"reference": reference,
				"code":      string(stripeErr.Code),
			})
			return PaymentDetails{
				Provider:          ProviderStripe,
				Status:            StatusRejected,
				Amount:            req.Amount,
				Currency:          CurrencyBRL,
				Method:            req.Method,
				ExternalReference: reference,
			}, nil
		}
		return PaymentDetails{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
		"reference":     reference,
	})
	details := stripePaymentDetails(intent)
	if details.Method == "" {
		details.Method = req.Method
	}
	return details, nil
}

// CreatePaymentLink creates a Stripe Checkout session for the amount.
func (p *StripeProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (LinkResult, error) {
	if p == nil {
		return LinkResult{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return LinkResult{}, errors.New("stripe: amount must be positive")
	}

	reference := FormatReference(req.OrderID, req.Type)
	metadata := map[string]string{
		ExternalReferenceKey: reference,
		"orderId":            strings.TrimSpace(req.OrderID),
		"paymentType":        strings.ToUpper(req.Type),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(reference),
		ExpiresAt:         stripe.Int64(p.clock().Add(p.linkTTL).Unix()),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(defaultString(req.Currency, CurrencyBRL))),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(defaultString(req.Title, "Booking payment")),
				},
			},
		}},
	}
	if email := strings.TrimSpace(req.PayerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	p.applyCommon(ctx, &params.Params, req.IdempotencyKey)

	session, err := p.api.sessions.New(params)
	if err != nil {
		return LinkResult{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"reference": reference,
	})

	expiresAt := p.clock().Add(p.linkTTL)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return LinkResult{
		ID:        session.ID,
		Provider:  ProviderStripe,
		URL:       session.URL,
		ExpiresAt: expiresAt,
	}, nil
}

// LookupPayment retrieves a PaymentIntent.
func (p *StripeProvider) LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	p.applyCommon(ctx, &params.Params, "")
	params.AddExpand("latest_charge")
	intent, err := p.api.intents.Get(strings.TrimSpace(transactionID), params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return PaymentDetails{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, transactionID)
		}
		return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripePaymentDetails(intent), nil
}

// Refund returns the customer's money for the PaymentIntent and reports its refreshed state. A captured
// intent is refunded; one still awaiting confirmation is cancelled so it can no longer capture.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	getParams := &stripe.PaymentIntentParams{}
	p.applyCommon(ctx, &getParams.Params, "")
	getParams.AddExpand("latest_charge")
	intent, err := p.api.intents.Get(transactionID, getParams)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
	case stripe.PaymentIntentStatusCanceled:
		return stripePaymentDetails(intent), nil
	case stripe.PaymentIntentStatusProcessing:
		return PaymentDetails{}, fmt.Errorf("stripe: payment intent %s is processing; refund once it settles", transactionID)
	default:
		return p.cancelIntent(ctx, transactionID, req)
	}
	if current := stripePaymentDetails(intent); current.Status == StatusRefunded {
		return current, nil
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
	}
	p.applyCommon(ctx, &params.Params, req.IdempotencyKey)
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if _, err := p.api.refunds.New(params); err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": transactionID,
	})
	return p.LookupPayment(ctx, transactionID)
}

func (p *StripeProvider) cancelIntent(ctx context.Context, transactionID string, req RefundRequest) (PaymentDetails, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(mapStripeCancellationReason(req.Reason)),
	}
	p.applyCommon(ctx, &params.Params, req.IdempotencyKey)
	intent, err := p.api.intents.Cancel(transactionID, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: cancel payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.cancelled", map[string]any{
		"paymentIntent": transactionID,
	})
	return stripePaymentDetails(intent), nil
}

func (p *StripeProvider) applyCommon(ctx context.Context, params *stripe.Params, idempotencyKey string) {
	params.Context = ctx
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusApproved
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		status = StatusRejected
	}

	method := ""
	if charge := intent.LatestCharge; charge != nil {
		if charge.Refunded || (charge.Amount > 0 && charge.AmountRefunded >= charge.Amount) {
			status = StatusRefunded
		}
		if charge.PaymentMethodDetails != nil {
			method = string(charge.PaymentMethodDetails.Type)
		}
	}

	currency := strings.ToUpper(string(intent.Currency))
	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return PaymentDetails{
		Provider:          ProviderStripe,
		TransactionID:     intent.ID,
		Status:            status,
		Amount:            intent.Amount,
		Currency:          currency,
		Method:            method,
		ExternalReference: intent.Metadata[ExternalReferenceKey],
		Raw:               raw,
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer), "":
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return string(stripe.RefundReasonRequestedByCustomer)
	}
}

func mapStripeCancellationReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.PaymentIntentCancellationReasonDuplicate):
		return string(stripe.PaymentIntentCancellationReasonDuplicate)
	case string(stripe.PaymentIntentCancellationReasonFraudulent):
		return string(stripe.PaymentIntentCancellationReasonFraudulent)
	case string(stripe.PaymentIntentCancellationReasonRequestedByCustomer), "":
		return string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)
	}
	return string(stripe.PaymentIntentCancellationReasonAbandoned)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
