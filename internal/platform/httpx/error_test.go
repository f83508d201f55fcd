package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	details := map[string]any{"team_id": "team-1", "date": "2026-03-10", "time_slot": "09:00"}
	WriteError(context.Background(), rr, NewError("slot_conflict", "slot taken\non 2026-03-10", http.StatusConflict).WithDetails(details))
	details["team_id"] = "mutated"

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "slot_conflict" || body["status"].(float64) != 409 {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["message"] != "slot taken on 2026-03-10" {
		t.Fatalf("expected control characters flattened, got %q", body["message"])
	}
	if body["team_id"] != "team-1" || body["time_slot"] != "09:00" {
		t.Fatalf("expected copied details, got %v", body)
	}
	if rr.Header().Get("Retry-After") != "" {
		t.Fatal("did not expect Retry-After")
	}
}

func TestWriteErrorRetryAfterRoundsUp(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, NewError("rate_limited", "slow down", http.StatusTooManyRequests).WithRetryAfter(6500*time.Millisecond))
	if got := rr.Header().Get("Retry-After"); got != "7" {
		t.Fatalf("expected Retry-After 7, got %q", got)
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("internal_error", "x", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}
