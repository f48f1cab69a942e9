package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pratyush/api/internal/auth"
	"pratyush/api/internal/store"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request ID header")
	}
}

func TestSessionEndpointAnonymous(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["authenticated"] != false {
		t.Fatalf("expected authenticated false, got %v", payload["authenticated"])
	}
}

func TestProtectedRouteWithoutBearerReturnsUnauthorized(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")
	req := httptest.NewRequest(http.MethodPost, "/api/notices", bytes.NewBufferString(`{"title":"T","body":"B"}`))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected code UNAUTHORIZED, got %v", payload["code"])
	}
}

func TestProtectedRouteWithExpiredTokenReturnsUnauthorized(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	expired, err := auth.IssueToken([]byte(svc.cfg.SessionSecret), auth.Claims{
		Sub:  "usr-1",
		Name: "Asha",
		JTI:  "jti-1",
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/notices", bytes.NewBufferString(`{"title":"T","body":"B"}`))
	req.Header.Set("Authorization", "Bearer "+expired)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSubmissionEndpointCreatesPending(t *testing.T) {
	fs := &fakeStore{
		insertSubmissionFn: func(_ context.Context, item store.Submission) (store.Submission, error) {
			item.ID = "sub-1"
			item.Status = "pending"
			return item, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	body := `{"title":"Club fair recap","summary":"Photos and highlights","category":"event","department":"ICT","submitterName":"Dev"}`
	req := httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["status"] != "pending" {
		t.Fatalf("expected pending, got %v", payload["status"])
	}
}

func TestSubmissionEndpointValidationDetails(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	req := httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewBufferString(`{"category":"Project"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
	details, ok := payload["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected field details, got %v", payload["details"])
	}
	if details["title"] == nil || details["summary"] == nil {
		t.Fatalf("expected title and summary details, got %v", details)
	}
}

func TestModerationEndpointMapsStateConflict(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, id string) (store.Submission, error) {
			return store.Submission{ID: id, Status: "approved"}, nil
		},
		resolveRoleFn: func(context.Context, string) (string, error) { return "admin", nil },
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	session, err := svc.CreateSession(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/submissions/sub-1/moderate", bytes.NewBufferString(`{"decision":"rejected"}`))
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "INVALID_STATE_TRANSITION" {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %v", payload["code"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	fs := &fakeStore{
		statsFn: func(context.Context, time.Time) (store.Stats, error) {
			return store.Stats{PublishedNewsletters: 7, ApprovedSubmissions: 21, ThisMonthSubmissions: 2, AverageFeedbackRating: 4.3}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["averageFeedbackRating"] != 4.3 {
		t.Fatalf("expected 4.3, got %v", payload["averageFeedbackRating"])
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	session, err := svc.CreateSession(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
