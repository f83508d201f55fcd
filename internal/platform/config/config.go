package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 25 * time.Second
	defaultSecurityEnvironment = EnvironmentLocal
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultSignatureHeader     = "X-Signature"
	defaultRequestIDHeader     = "X-Request-Id"
	defaultWebhookPerMinute    = 20
	defaultDepositPerMinute    = 10
	defaultTimeZone            = "America/Sao_Paulo"
	defaultGatewayTimeout      = 10 * time.Second
	defaultScheduleListLimit   = 200
	defaultNotifyTimeout       = 10 * time.Second
	defaultNotifyLocale        = "pt-BR"
	defaultTwilioBaseURL       = "https://api.twilio.com"
	defaultSMTPPort            = 587
	defaultFocusNFeURL         = "https://homologacao.focusnfe.com.br"
	defaultInvoicingTimeout    = 20 * time.Second
	defaultSignedURLTTL        = 15 * time.Minute
	defaultPaymentLinkTTL      = 24 * time.Hour
	defaultTxAttempts          = 5
	defaultTxTimeout           = 15 * time.Second
	defaultPubSubTopic         = "booking-events"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
)

// Deployment environments recognised by Security.Environment.
const (
	EnvironmentLocal       = "local"
	EnvironmentDevelopment = "development"
	EnvironmentHomolog     = "homolog"
	EnvironmentProduction  = "production"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	PSP           PSPConfig
	Webhooks      WebhookConfig
	Notifications NotificationConfig
	Invoicing     InvoicingConfig
	Booking       BookingConfig
	PubSub        PubSubConfig
	RateLimits    RateLimitConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
	TxTimeout    time.Duration
}

// StorageConfig holds the invoice archive bucket and signed download settings.
type StorageConfig struct {
	InvoicesBucket string
	SignerEmail    string
	SignerKey      string
	SignedURLTTL   time.Duration
}

// PSPConfig configures the payment gateway. Without a Stripe key only the mock provider is registered.
type PSPConfig struct {
	StripeAPIKey    string
	StripeAccountID string
	EnableMock      bool
	SuccessURL      string
	CancelURL       string
	PaymentLinkTTL  time.Duration
}

// WebhookConfig contains gateway callback verification parameters.
type WebhookConfig struct {
	SigningSecret   string
	SignatureHeader string
	RequestIDHeader string
}

// NotificationConfig configures customer messaging.
type NotificationConfig struct {
	Twilio        TwilioConfig
	SMTP          SMTPConfig
	Timeout       time.Duration
	DefaultLocale string
}

// TwilioConfig holds the WhatsApp sender credentials.
type TwilioConfig struct {
	BaseURL      string
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string
}

// Enabled reports whether WhatsApp delivery is configured.
func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.WhatsAppFrom != ""
}

// SMTPConfig holds the email relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether email delivery is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// InvoicingConfig configures NFS-e issuance. An empty token runs the issuer in mock mode.
type InvoicingConfig struct {
	BaseURL               string
	Token                 string
	CompanyCNPJ           string
	MunicipalRegistration string
	ServiceCode           string
	Timeout               time.Duration
}

// BookingConfig holds scheduling rules shared by the booking services.
type BookingConfig struct {
	TimeZone          string
	Location          *time.Location
	GatewayTimeout    time.Duration
	ScheduleListLimit int
}

// PubSubConfig selects where booking events are published. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	WebhookPerMinute int
	DepositPerMinute int
}

// SecurityConfig groups environment and server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// IsProduction reports whether the service runs in production.
func (s SecurityConfig) IsProduction() bool {
	return s.Environment == EnvironmentProduction
}

// OIDCConfig controls verification of Google-signed tokens on internal endpoints.
type OIDCConfig struct {
	JWKSURL         string
	Audience        string
	Issuers         []string
	ServiceAccounts []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	env := envReader{lookup: options.lookup(dotEnv)}

	cfg := Config{
		Server: ServerConfig{
			Port:           env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:    env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: env.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   env.integer("API_FIRESTORE_TX_ATTEMPTS", defaultTxAttempts),
			TxTimeout:    env.duration("API_FIRESTORE_TX_TIMEOUT", defaultTxTimeout),
		},
		Storage: StorageConfig{
			InvoicesBucket: env.str("API_STORAGE_INVOICES_BUCKET", ""),
			SignerEmail:    env.str("API_STORAGE_SIGNER_EMAIL", ""),
			SignerKey:      env.str("API_STORAGE_SIGNER_KEY", ""),
			SignedURLTTL:   env.duration("API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
		},
		PSP: PSPConfig{
			StripeAPIKey:    env.str("API_PSP_STRIPE_API_KEY", ""),
			StripeAccountID: env.str("API_PSP_STRIPE_ACCOUNT_ID", ""),
			EnableMock:      env.boolean("API_PSP_ENABLE_MOCK", true),
			SuccessURL:      env.str("API_PSP_SUCCESS_URL", ""),
			CancelURL:       env.str("API_PSP_CANCEL_URL", ""),
			PaymentLinkTTL:  env.duration("API_PSP_PAYMENT_LINK_TTL", defaultPaymentLinkTTL),
		},
		Webhooks: WebhookConfig{
			SigningSecret:   env.str("API_WEBHOOK_SIGNING_SECRET", ""),
			SignatureHeader: env.str("API_WEBHOOK_SIGNATURE_HEADER", defaultSignatureHeader),
			RequestIDHeader: env.str("API_WEBHOOK_REQUEST_ID_HEADER", defaultRequestIDHeader),
		},
		Notifications: NotificationConfig{
			Twilio: TwilioConfig{
				BaseURL:      env.str("API_TWILIO_BASE_URL", defaultTwilioBaseURL),
				AccountSID:   env.str("API_TWILIO_ACCOUNT_SID", ""),
				AuthToken:    env.str("API_TWILIO_AUTH_TOKEN", ""),
				WhatsAppFrom: env.str("API_TWILIO_WHATSAPP_FROM", ""),
			},
			SMTP: SMTPConfig{
				Host:     env.str("API_SMTP_HOST", ""),
				Port:     env.integer("API_SMTP_PORT", defaultSMTPPort),
				Username: env.str("API_SMTP_USERNAME", ""),
				Password: env.str("API_SMTP_PASSWORD", ""),
				From:     env.str("API_SMTP_FROM", ""),
			},
			Timeout:       env.duration("API_NOTIFICATIONS_TIMEOUT", defaultNotifyTimeout),
			DefaultLocale: env.str("API_NOTIFICATIONS_DEFAULT_LOCALE", defaultNotifyLocale),
		},
		Invoicing: InvoicingConfig{
			BaseURL:               env.str("API_FOCUSNFE_URL", defaultFocusNFeURL),
			Token:                 env.str("API_FOCUSNFE_TOKEN", ""),
			CompanyCNPJ:           env.str("API_INVOICING_COMPANY_CNPJ", ""),
			MunicipalRegistration: env.str("API_INVOICING_MUNICIPAL_REGISTRATION", ""),
			ServiceCode:           env.str("API_INVOICING_SERVICE_CODE", ""),
			Timeout:               env.duration("API_INVOICING_TIMEOUT", defaultInvoicingTimeout),
		},
		Booking: BookingConfig{
			TimeZone:          env.str("API_BOOKING_TIMEZONE", defaultTimeZone),
			GatewayTimeout:    env.duration("API_BOOKING_GATEWAY_TIMEOUT", defaultGatewayTimeout),
			ScheduleListLimit: env.integer("API_BOOKING_SCHEDULE_LIST_LIMIT", defaultScheduleListLimit),
		},
		PubSub: PubSubConfig{
			ProjectID: env.str("API_PUBSUB_PROJECT_ID", ""),
			Topic:     env.str("API_PUBSUB_TOPIC", defaultPubSubTopic),
		},
		RateLimits: RateLimitConfig{
			WebhookPerMinute: env.integer("API_RATELIMIT_WEBHOOK_PER_MIN", defaultWebhookPerMinute),
			DepositPerMinute: env.integer("API_RATELIMIT_DEPOSIT_PER_MIN", defaultDepositPerMinute),
		},
		Security: SecurityConfig{
			Environment: normaliseEnvironment(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:         env.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:        env.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:         env.csv("API_SECURITY_OIDC_ISSUERS"),
				ServiceAccounts: env.csv("API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"Webhooks.SigningSecret", &cfg.Webhooks.SigningSecret},
		{"Notifications.Twilio.AuthToken", &cfg.Notifications.Twilio.AuthToken},
		{"Notifications.SMTP.Password", &cfg.Notifications.SMTP.Password},
		{"Invoicing.Token", &cfg.Invoicing.Token},
		{"Storage.SignerKey", &cfg.Storage.SignerKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if loc, err := bookingLocation(cfg.Booking.TimeZone); err == nil {
		cfg.Booking.Location = loc
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func normaliseEnvironment(value string) string {
	switch value = strings.ToLower(strings.TrimSpace(value)); value {
	case "prod":
		return EnvironmentProduction
	case "dev":
		return EnvironmentDevelopment
	case "staging", "hml":
		return EnvironmentHomolog
	}
	return value
}

// bookingLocation resolves an IANA zone name. Blank and "Local" are refused so the booking calendar never
// depends on the host clock.
func bookingLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("config: booking time zone %q is not an IANA zone", name)
	}
	return time.LoadLocation(name)
}

func validateConfig(cfg Config) error {
	var invalid []string
	require := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(cfg.Firestore.TxAttempts > 0, "Firestore.TxAttempts")
	_, tzErr := bookingLocation(cfg.Booking.TimeZone)
	require(tzErr == nil && cfg.Booking.Location != nil, "Booking.TimeZone")
	require(cfg.Booking.GatewayTimeout > 0, "Booking.GatewayTimeout")
	require(cfg.Booking.ScheduleListLimit > 0 && cfg.Booking.ScheduleListLimit <= defaultScheduleListLimit, "Booking.ScheduleListLimit")
	require(cfg.PSP.StripeAPIKey != "" || cfg.PSP.EnableMock, "PSP.StripeAPIKey")
	require(cfg.Notifications.Timeout > 0, "Notifications.Timeout")
	switch cfg.Security.Environment {
	case EnvironmentLocal, EnvironmentDevelopment, EnvironmentHomolog, EnvironmentProduction:
	default:
		invalid = append(invalid, "Security.Environment")
	}
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
