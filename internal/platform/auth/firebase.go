package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/config"
)

// ErrUserNotFound is returned when Firebase Auth has no account for the UID.
var ErrUserNotFound = errors.New("auth: firebase user not found")

// FirebaseAdmin wraps the Admin SDK auth client: token verification for the middleware, plus the
// account lookups and custom-claim updates used by user registration and role management.
type FirebaseAdmin struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// NewFirebaseAdmin initialises the Admin SDK. FIREBASE_AUTH_EMULATOR_HOST is honoured by the SDK.
func NewFirebaseAdmin(ctx context.Context, cfg config.FirebaseConfig, timeout time.Duration) (*FirebaseAdmin, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &FirebaseAdmin{client: client, timeout: timeout}, nil
}

// VerifyIDToken implements TokenVerifier.
func (f *FirebaseAdmin) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if f == nil || f.client == nil {
		return nil, errors.New("firebase admin not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.client.VerifyIDToken(ctx, idToken)
}

// LookupEmail returns the email registered for uid, or ErrUserNotFound.
func (f *FirebaseAdmin) LookupEmail(ctx context.Context, uid string) (string, error) {
	if f == nil || f.client == nil {
		return "", errors.New("firebase admin not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	record, err := f.client.GetUser(ctx, uid)
	if err != nil {
		if firebaseauth.IsUserNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrUserNotFound, uid)
		}
		return "", err
	}
	if record.UserInfo == nil {
		return "", nil
	}
	return record.UserInfo.Email, nil
}

// SetRole stores role as the user's role custom claim. Existing sessions pick it up on token refresh.
func (f *FirebaseAdmin) SetRole(ctx context.Context, uid, role string) error {
	if f == nil || f.client == nil {
		return errors.New("firebase admin not initialised")
	}
	if !ValidRole(role) {
		return fmt.Errorf("auth: invalid role %q", role)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.client.SetCustomUserClaims(ctx, uid, map[string]interface{}{defaultRoleClaim: NormaliseRole(role)}); err != nil {
		if firebaseauth.IsUserNotFound(err) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
		}
		return err
	}
	return nil
}
