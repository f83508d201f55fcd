package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

const (
	// defaultSideEffectTimeout bounds best-effort calls made after a transaction committed.
	defaultSideEffectTimeout = 10 * time.Second
	// defaultGatewayTimeout bounds calls to the payment gateway.
	defaultGatewayTimeout = 10 * time.Second
)

// Logger is the structured event logger injected into services.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

func newULID() string {
	return ulid.Make().String()
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

func loggerOrNoop(logger func(context.Context, string, map[string]any)) func(context.Context, string, map[string]any) {
	if logger == nil {
		return noopLogger
	}
	return logger
}

func idGeneratorOrDefault(gen func() string) func() string {
	if gen == nil {
		return newULID
	}
	return gen
}

func durationOrDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// mapRepositoryError translates repository failures into the caller's sentinel errors.
func mapRepositoryError(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// ErrServiceUnavailable indicates a backing store could not be reached.
var ErrServiceUnavailable = errors.New("service unavailable")

// systemActor acts for follow-up work triggered by the payment flow rather than a user.
func systemActor() *Actor {
	return &Actor{UID: "system", Roles: []string{auth.RoleStaff}}
}

func actorID(actor *Actor) string {
	if actor == nil {
		return ""
	}
	return strings.TrimSpace(actor.UID)
}

// ownerOrOperator reports whether actor owns the resource or is staff/admin.
func ownerOrOperator(actor *Actor, ownerID string) bool {
	if actor == nil {
		return false
	}
	if actor.IsOperator() {
		return true
	}
	return actorID(actor) != "" && actorID(actor) == strings.TrimSpace(ownerID)
}

// runDetached runs a best-effort side effect with its own deadline so a cancelled request context
// does not abort work that follows a committed transaction.
func runDetached(ctx context.Context, timeout time.Duration, fn func(context.Context)) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), durationOrDefault(timeout, defaultSideEffectTimeout))
	defer cancel()
	fn(detached)
}

// shortOrderNumber is the customer-facing order reference used in messages.
func shortOrderNumber(orderID string) string {
	orderID = strings.TrimSpace(orderID)
	if len(orderID) > 8 {
		return orderID[len(orderID)-8:]
	}
	return orderID
}
