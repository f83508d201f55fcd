package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// Booking commits read an order, its slot locks and the team's schedules before writing, so two
// customers racing for one slot abort each other; a few attempts settle the loser.
const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is the body of a transaction. It may run more than once.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes RunTransaction.
type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts caps how many times the body runs on contention. Non-positive values are ignored.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction including retries. Non-positive values are ignored.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func newTxSettings(opts []TxOption) txSettings {
	s := txSettings{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// bound applies the transaction timeout unless the caller's deadline is already tighter.
func (s txSettings) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= s.timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// RunTransaction runs fn in a Firestore transaction. Errors returned by fn keep their identity
// through errors.Is and errors.As.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	settings := newTxSettings(opts)
	txCtx, cancel := settings.bound(ctx)
	defer cancel()

	err := client.RunTransaction(txCtx, fn, firestore.MaxAttempts(settings.attempts))
	return WrapError("transaction", err)
}
