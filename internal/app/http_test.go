package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tawteen/api/internal/auth"
	"tawteen/api/internal/store"
)

func newServerAndToken(t *testing.T, fs *fakeStore, fp *fakePlans, role string) (*HTTPServer, string) {
	t.Helper()
	secret := "test-secret"

	svc := newTestService(fs, fp)
	server := NewHTTPServer(svc, "*")

	token, err := auth.IssueToken([]byte(secret), auth.Claims{
		Sub:  "usr_" + role,
		Name: "Test User",
		Role: role,
		JTI:  "jti-" + role,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return server, token
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newServerAndToken(t, &fakeStore{}, &fakePlans{}, "investor")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok true, got %v", payload["ok"])
	}
}

func TestRequestsWithoutTokenAreUnauthorized(t *testing.T) {
	server, _ := newServerAndToken(t, &fakeStore{}, &fakePlans{}, "investor")

	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestInvestorCannotUseReviewEndpoints(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, &fakePlans{}, "investor")

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "start review", path: "/api/plans/pln-1/start-review", body: `{}`},
		{name: "send back", path: "/api/plans/pln-1/send-back", body: `{"note":"x"}`},
		{name: "approve", path: "/api/plans/pln-1/approve", body: `{}`},
		{name: "reject", path: "/api/plans/pln-1/reject", body: `{"reason":"x"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()

			server.Handler().ServeHTTP(rr, req)

			if rr.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
			}
			var payload map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
				t.Fatalf("parse response: %v", err)
			}
			if payload["code"] != "FORBIDDEN" {
				t.Fatalf("expected code FORBIDDEN, got %v", payload["code"])
			}
		})
	}
}

func TestReviewerCannotCreatePlans(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, &fakePlans{}, "reviewer")

	req := httptest.NewRequest(http.MethodPost, "/api/plans", bytes.NewBufferString(`{"planType":"PRODUCT","title":"Plan"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateAndGetPlanOverHTTP(t *testing.T) {
	var created store.Plan
	fs := &fakeStore{
		insertPlanFn: func(_ context.Context, plan store.Plan) error {
			created = plan
			return nil
		},
		getPlanFn: func(_ context.Context, planID string) (store.Plan, error) {
			created.ID = planID
			return created, nil
		},
	}
	server, token := newServerAndToken(t, fs, &fakePlans{}, "investor")

	req := httptest.NewRequest(http.MethodPost, "/api/plans", bytes.NewBufferString(`{"planType":"SERVICE","title":"Logistics hub"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["status"] != StatusDraft {
		t.Fatalf("expected DRAFT plan, got %v", payload["status"])
	}
	planID, _ := payload["id"].(string)
	if planID == "" {
		t.Fatalf("expected plan ID in response")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/plans/"+planID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var detail map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	plan, _ := detail["plan"].(map[string]any)
	if plan == nil || plan["title"] != "Logistics hub" {
		t.Fatalf("unexpected plan payload: %v", detail)
	}
}

func TestSaveCommentsAcceptsFlatFormEncoding(t *testing.T) {
	var savedRows []store.ReviewComment
	fs := &fakeStore{
		getPlanFn: func(context.Context, string) (store.Plan, error) {
			plan := draftPlan()
			plan.Status = StatusUnderReview
			plan.ReviewPass = 1
			return plan, nil
		},
		replaceReviewCommentsFn: func(_ context.Context, _ string, _ int, rows []store.ReviewComment) error {
			savedRows = rows
			return nil
		},
	}
	server, token := newServerAndToken(t, fs, &fakePlans{}, "reviewer")

	form := url.Values{}
	form.Set("Comments[0].pageTitleForTL", "Value chain")
	form.Set("Comments[0].comment", "Local share looks too low")
	form.Set("Comments[0].fields[0].section", "valueChain")
	form.Set("Comments[0].fields[0].inputKey", "localShare")
	form.Set("Comments[0].fields[0].id", "vc-1")
	form.Set("Comments[0].fields[0].label", "Local share")
	form.Set("Comments[0].fields[0].value", "20")

	req := httptest.NewRequest(http.MethodPost, "/api/plans/pln-1/comments", strings.NewReader(form.Encode()))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(savedRows) != 1 {
		t.Fatalf("expected one saved comment, got %d", len(savedRows))
	}
	if savedRows[0].PageTitle != "Value chain" {
		t.Fatalf("expected page title from form, got %q", savedRows[0].PageTitle)
	}
	if len(savedRows[0].Fields) != 1 || savedRows[0].Fields[0].RowID != "vc-1" {
		t.Fatalf("expected flagged field with row ID vc-1, got %+v", savedRows[0].Fields)
	}
}

func TestDecisionLogEndpoint(t *testing.T) {
	fs := &fakeStore{
		getPlanFn: func(_ context.Context, planID string) (store.Plan, error) {
			plan := draftPlan()
			plan.ID = planID
			plan.InvestorID = "usr_investor"
			return plan, nil
		},
		listDecisionLogFn: func(_ context.Context, _ string, limit int) ([]store.DecisionLogEntry, error) {
			if limit != 50 {
				t.Fatalf("expected default limit 50, got %d", limit)
			}
			return []store.DecisionLogEntry{
				{ID: 1, PlanID: "pln-1", Pass: 1, Action: ActionSentBack, Note: "Fix local share", DecidedBy: "Omar Nasser", DecidedAt: time.Now()},
			}, nil
		},
	}
	server, token := newServerAndToken(t, fs, &fakePlans{}, "investor")

	req := httptest.NewRequest(http.MethodGet, "/api/plans/pln-1/decision-log", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	entries, _ := payload["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one decision log entry, got %v", payload)
	}
	entry, _ := entries[0].(map[string]any)
	if entry["action"] != ActionSentBack {
		t.Fatalf("expected SENT_BACK entry, got %v", entry)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server, token := newServerAndToken(t, &fakeStore{}, &fakePlans{}, "admin")

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	server, _ := newServerAndToken(t, &fakeStore{}, &fakePlans{}, "investor")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request ID echoed, got %q", got)
	}
}
