package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
)

var fixedTime = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func depositRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:pay-deposit", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	identity := &auth.Identity{UID: "user-1", Roles: []string{auth.RoleUser}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestMiddlewareRequiresKey(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without a key")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, depositRequest("", `{"method":"card"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysCompletedCharge(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"DEPOSIT_PAID"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, depositRequest("attempt-1", `{"method":"card"}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, depositRequest("attempt-1", `{"method":"card"}`))

	if calls != 1 {
		t.Fatalf("expected the charge handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay, got %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatal("expected replay header")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected stored content type, got %q", second.Header().Get("Content-Type"))
	}
}

func TestMiddlewareRejectsReuseWithDifferentBody(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), depositRequest("attempt-1", `{"method":"card"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, depositRequest("attempt-1", `{"method":"pix"}`))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewarePendingReservationReturnsConflict(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStatePending}}
	handler := Middleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run while the key is held")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, depositRequest("attempt-1", `{}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStateNew}}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, depositRequest("attempt-1", `{}`))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected handler status to pass through, got %d", rr.Code)
	}
	if !store.released || store.completed {
		t.Fatalf("expected release without completion, got released=%v completed=%v", store.released, store.completed)
	}
}

func TestMiddlewareKeepsResponseWhenCompleteFails(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStateNew}, completeErr: errors.New("firestore down")}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, depositRequest("attempt-1", `{}`))

	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("expected handler response, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestMiddlewareScopesKeysPerUser(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), depositRequest("shared", `{}`))
	other := depositRequest("shared", `{}`)
	other = other.WithContext(auth.WithIdentity(context.Background(), &auth.Identity{UID: "user-2"}))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	if calls != 2 {
		t.Fatalf("expected keys to be scoped per user, handler ran %d times", calls)
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Reserve(ctx, "a", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := store.Reserve(ctx, "b", "fp", fixedTime, time.Hour); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	removed, err := store.CleanupExpired(ctx, fixedTime.Add(10*time.Minute), 10)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired record removed, got %d (%v)", removed, err)
	}
	res, err := store.Reserve(ctx, "a", "other", fixedTime.Add(10*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired key to be reusable, got %+v (%v)", res, err)
	}
}

type stubStore struct {
	reservation Reservation
	completeErr error
	released    bool
	completed   bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return s.reservation, nil
}

func (s *stubStore) Complete(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completed = true
	return nil
}

func (s *stubStore) Release(context.Context, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
