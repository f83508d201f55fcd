package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oklog/ulid/v2"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/di"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/handlers"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/invoicing"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/payments"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/config"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/idempotency"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/jobs"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/observability"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/secrets"
	platformstorage "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/storage"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	firestoreRepo "github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger("booking-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if locale := strings.TrimSpace(cfg.Notifications.DefaultLocale); locale != "" {
		if err := notifications.SetDefaultLocale(locale); err != nil {
			logger.Warn("keeping built-in notification locale", zap.Error(err))
		}
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var firestoreOpts []pfirestore.ProviderOption
	if credentials := strings.TrimSpace(cfg.Firebase.CredentialsFile); credentials != "" {
		firestoreOpts = append(firestoreOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, firestoreOpts...)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo,
		pfirestore.WithTxAttempts(cfg.Firestore.TxAttempts),
		pfirestore.WithTxTimeout(cfg.Firestore.TxTimeout),
	)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var verificationMetrics auth.MetricsRecorder
	if recorder, err := observability.NewVerificationMetrics(nil); err != nil {
		logger.Warn("auth: verification metrics unavailable", zap.Error(err))
	} else {
		verificationMetrics = recorder
	}

	gateway, err := newPaymentGateway(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	whatsApp, email := newNotificationSenders(cfg, logger.Named("notifications"))

	issuer, err := newInvoiceIssuer(cfg)
	if err != nil {
		logger.Fatal("failed to initialise invoice issuer", zap.Error(err))
	}

	infra := di.Infrastructure{
		Gateway:  gateway,
		WhatsApp: whatsApp,
		Email:    email,
		Issuer:   issuer,
		Build:    buildInfo,
		Logger:   logger,
		Clock:    time.Now,
	}

	if bucket := strings.TrimSpace(cfg.Storage.InvoicesBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		archive, err := newInvoiceArchive(cfg, storageClient)
		if err != nil {
			logger.Fatal("failed to initialise invoice archive", zap.Error(err))
		}
		infra.Archive = archive
	} else {
		logger.Warn("storage: invoice bucket not configured; invoices keep the authority PDF link only")
	}

	if topicID := strings.TrimSpace(cfg.PubSub.Topic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, pubsubProjectID(cfg))
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicID)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		infra.Events = publisher
	}

	firebaseAdmin, err := auth.NewFirebaseAdmin(ctx, cfg.Firebase, 0)
	if err != nil {
		logger.Fatal("failed to initialise firebase admin", zap.Error(err))
	}
	infra.Roles = firebaseAdmin
	infra.Emails = firebaseAdmin

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services

	authenticator := auth.NewAuthenticator(firebaseAdmin,
		auth.WithRoleLookup(profileRoleLookup(registry.Users())),
	)

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider,
		idempotency.WithTransactionOptions(pfirestore.WithTxAttempts(cfg.Firestore.TxAttempts)),
	)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	authLogger := logger.Named("auth")
	oidcMiddleware := buildOIDCMiddleware(authLogger, cfg, verificationMetrics)
	webhookMiddleware := buildWebhookMiddleware(authLogger, cfg, verificationMetrics)

	publicHandlers := handlers.NewPublicHandlers(svc.Availability, svc.Catalog)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Users)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders,
		handlers.WithOrderDeposits(svc.Deposits),
		handlers.WithOrderRefunds(svc.Refunds),
		handlers.WithOrderIdempotency(idempotencyMiddleware),
		handlers.WithOrderDepositRateLimit(cfg.RateLimits.DepositPerMinute, time.Minute, nil),
	)
	scheduleHandlers := handlers.NewScheduleHandlers(authenticator, svc.Schedules)
	adminHandlers := handlers.NewAdminHandlers(authenticator, handlers.AdminDeps{
		Teams:          svc.Teams,
		Catalog:        svc.Catalog,
		Users:          svc.Users,
		Schedules:      svc.Schedules,
		Orders:         svc.Orders,
		FinalPayments:  svc.FinalPayments,
		Invoices:       svc.Invoices,
		Reconciliation: svc.Reconciliation,
	})
	webhookHandlers := handlers.NewPaymentWebhookHandlers(svc.Webhooks,
		handlers.WithWebhookRateLimit(cfg.RateLimits.WebhookPerMinute, time.Minute, nil),
	)
	internalHandlers := handlers.NewInternalHandlers(svc.Notifications)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithRoutes("/public", publicHandlers.Routes),
		handlers.WithRoutes("/me", meHandlers.Routes),
		handlers.WithRootRoutes(orderHandlers.ActionRoutes),
		handlers.WithRoutes("/orders", orderHandlers.Routes),
		handlers.WithRoutes("/schedules", scheduleHandlers.Routes),
		handlers.WithRoutes("/admin", adminHandlers.Routes),
		handlers.WithRoutes("/webhooks", webhookHandlers.Routes),
		handlers.WithGroupMiddlewares("/webhooks", webhookMiddleware),
		handlers.WithRoutes("/internal", internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithGroupMiddlewares("/internal", oidcMiddleware))
	} else {
		logger.Warn("auth: OIDC not configured; internal routes are disabled")
		opts = append(opts, handlers.WithGroupMiddlewares("/internal", denyAll))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("booking api listening",
			zap.String("environment", buildInfo.Environment),
			zap.String("version", buildInfo.Version),
			zap.String("payments", gateway.DefaultProvider()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = config.EnvironmentLocal
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil && fetcher.Configured() {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func newPaymentGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    key,
			AccountID: cfg.PSP.StripeAccountID,
			LinkTTL:   cfg.PSP.PaymentLinkTTL,
			Logger: func(_ context.Context, event string, fields map[string]any) {
				zFields := make([]zap.Field, 0, len(fields)+1)
				zFields = append(zFields, zap.String("event", event))
				for k, v := range fields {
					zFields = append(zFields, zap.Any(k, v))
				}
				logger.Debug("stripe log", zFields...)
			},
			Clock: time.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		providers[payments.ProviderStripe] = stripeProvider
	}
	if cfg.PSP.EnableMock {
		if cfg.Security.IsProduction() {
			logger.Warn("mock payment provider enabled in production")
		}
		mock, err := payments.NewMockProvider(func() string { return ulid.Make().String() }, time.Now)
		if err != nil {
			return nil, fmt.Errorf("mock provider: %w", err)
		}
		providers[payments.ProviderMock] = mock
	}
	return payments.NewManager(providers)
}

func newNotificationSenders(cfg config.Config, logger *zap.Logger) (notifications.WhatsAppSender, notifications.EmailSender) {
	fallback := notifications.NewLogSender(logger)
	var whatsApp notifications.WhatsAppSender = fallback
	var email notifications.EmailSender = fallback

	if tw := cfg.Notifications.Twilio; tw.Enabled() {
		sender, err := notifications.NewTwilioWhatsApp(notifications.TwilioConfig{
			BaseURL:    tw.BaseURL,
			AccountSID: tw.AccountSID,
			AuthToken:  tw.AuthToken,
			From:       tw.WhatsAppFrom,
			Timeout:    cfg.Notifications.Timeout,
		})
		if err != nil {
			logger.Warn("whatsapp sender misconfigured; logging messages instead", zap.Error(err))
		} else {
			whatsApp = sender
		}
	} else {
		logger.Info("whatsapp sender not configured; logging messages instead")
	}

	if smtpCfg := cfg.Notifications.SMTP; smtpCfg.Enabled() {
		mailer, err := notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:     smtpCfg.Host,
			Port:     smtpCfg.Port,
			Username: smtpCfg.Username,
			Password: smtpCfg.Password,
			From:     smtpCfg.From,
			Timeout:  cfg.Notifications.Timeout,
		})
		if err != nil {
			logger.Warn("smtp mailer misconfigured; logging email instead", zap.Error(err))
		} else {
			email = mailer
		}
	} else {
		logger.Info("smtp mailer not configured; logging email instead")
	}
	return whatsApp, email
}

func newInvoiceIssuer(cfg config.Config) (invoicing.Issuer, error) {
	if strings.TrimSpace(cfg.Invoicing.Token) == "" {
		return invoicing.NewMockIssuer(time.Now), nil
	}
	return invoicing.NewFocusNFeClient(invoicing.FocusNFeConfig{
		BaseURL:               cfg.Invoicing.BaseURL,
		Token:                 cfg.Invoicing.Token,
		CompanyCNPJ:           cfg.Invoicing.CompanyCNPJ,
		MunicipalRegistration: cfg.Invoicing.MunicipalRegistration,
		ServiceCode:           cfg.Invoicing.ServiceCode,
		Timeout:               cfg.Invoicing.Timeout,
	})
}

func newInvoiceArchive(cfg config.Config, client *cloudstorage.Client) (*platformstorage.InvoiceArchive, error) {
	writer, err := platformstorage.NewGCSWriter(client)
	if err != nil {
		return nil, err
	}
	signer, err := platformstorage.NewServiceAccountSigner(cfg.Storage.SignerEmail, cfg.Storage.SignerKey)
	if err != nil {
		return nil, err
	}
	return platformstorage.NewInvoiceArchive(writer, signer, cfg.Storage.InvoicesBucket,
		platformstorage.WithDownloadTTL(cfg.Storage.SignedURLTTL),
	)
}

// profileRoleLookup reads the stored role for tokens minted before the role claim was set.
func profileRoleLookup(users repositories.UserRepository) auth.RoleLookup {
	if users == nil {
		return nil
	}
	return func(ctx context.Context, uid string) (string, error) {
		user, err := users.FindByID(ctx, uid)
		if err != nil {
			return "", err
		}
		return user.Role, nil
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	opts := []auth.OIDCOption{
		auth.WithOIDCIssuers(cfg.Security.OIDC.Issuers...),
		auth.WithOIDCServiceAccounts(cfg.Security.OIDC.ServiceAccounts...),
		auth.WithOIDCLogger(observability.NewPrintfAdapter(logger)),
	}
	if metrics != nil {
		opts = append(opts, auth.WithOIDCMetrics(metrics))
	}
	return auth.NewOIDCValidator(cache, audience, opts...).RequireOIDC()
}

func buildWebhookMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	enforce := cfg.Security.IsProduction()
	if strings.TrimSpace(cfg.Webhooks.SigningSecret) == "" {
		if enforce {
			logger.Warn("auth: webhook signing secret missing in production; every callback will be rejected")
		} else {
			logger.Info("auth: webhook signing secret not configured; unsigned callbacks accepted")
		}
	}
	opts := []auth.WebhookOption{
		auth.WithWebhookEnforcement(enforce),
		auth.WithWebhookHeaders(cfg.Webhooks.SignatureHeader, cfg.Webhooks.RequestIDHeader),
		auth.WithWebhookLogger(observability.NewPrintfAdapter(logger)),
	}
	if metrics != nil {
		opts = append(opts, auth.WithWebhookMetrics(metrics))
	}
	return auth.NewWebhookVerifier(cfg.Webhooks.SigningSecret, opts...).RequireSignature()
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"internal_auth_not_configured"}`, http.StatusServiceUnavailable)
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func pubsubProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.PubSub.ProjectID); id != "" {
		return id
	}
	return traceProjectID(cfg)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = config.EnvironmentLocal
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithEnvironmentProjects(envLabel, parseKeyValueList(lookup("API_SECRET_PROJECT_IDS"))),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve. Production always needs the webhook
// secret; a Stripe key is required unless the mock gateway is explicitly enabled.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	if environment == config.EnvironmentProduction || environment == "prod" {
		required = append(required, "Webhooks.SigningSecret")
	}
	if strings.TrimSpace(env["API_PSP_STRIPE_API_KEY"]) != "" {
		required = append(required, "PSP.StripeAPIKey")
	}
	if strings.TrimSpace(env["API_STORAGE_INVOICES_BUCKET"]) != "" {
		required = append(required, "Storage.SignerKey")
	}
	if strings.TrimSpace(env["API_INVOICING_TOKEN"]) != "" {
		required = append(required, "Invoicing.Token")
	}
	return required
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
