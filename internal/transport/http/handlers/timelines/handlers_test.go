package timelineshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"perfreview/internal/domain/auth"
	"perfreview/internal/platform/metrics"
	"perfreview/internal/transport/http/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Details struct {
			Fields []struct {
				Field string `json:"field"`
				Code  string `json:"code"`
			} `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

const validTimeline = `{
  "reviewPeriod":   {"start": "2024-07-01", "end": "2024-12-31"},
  "selfAssessment": {"start": "2024-10-01", "end": "2024-10-14"},
  "peerReview":     {"start": "2024-10-15", "end": "2024-10-28"},
  "managerReview":  {"start": "2024-10-29", "end": "2024-11-11"}
}`

func newTestRouter(t *testing.T, collector *metrics.Collector, role string) http.Handler {
	t.Helper()
	h := NewHandler(auth.StaticPermissions{}, collector)
	h.Now = func() time.Time { return time.Date(2024, 10, 20, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	if role != "" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", TenantID: "t1", RoleName: role})
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	h.RegisterRoutes(r)
	return r
}

func post(t *testing.T, handler http.Handler, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body)).WithContext(context.Background())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestValidateAcceptsOrderedTimeline(t *testing.T) {
	collector := metrics.New()
	code, env := post(t, newTestRouter(t, collector, auth.RoleEmployee), "/timelines/validate", validTimeline)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("expected 200, got %d", code)
	}
	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil || !result.Valid {
		t.Fatalf("expected valid result, got %s", env.Data)
	}
	if got := collector.Snapshot()["timelineValidTotal"]; got != uint64(1) {
		t.Fatalf("expected one valid timeline counted, got %v", got)
	}
}

func TestValidateReportsErrorsWithoutFailingRequest(t *testing.T) {
	body := `{
  "reviewPeriod":   {"start": "2024-07-01", "end": "2024-12-31"},
  "selfAssessment": {"start": "2024-10-01", "end": "2024-10-20"},
  "peerReview":     {"start": "2024-10-15", "end": "2024-10-28"},
  "managerReview":  {"start": "2024-11-11", "end": "2024-11-01"}
}`
	code, env := post(t, newTestRouter(t, nil, auth.RoleHR), "/timelines/validate", body)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Field string `json:"field"`
			Code  string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Valid || len(result.Errors) != 2 {
		t.Fatalf("expected two errors, got %s", env.Data)
	}
	if result.Errors[0].Field != "managerReview" || result.Errors[0].Code != "InvalidRange" {
		t.Fatalf("unexpected first error: %+v", result.Errors[0])
	}
	if result.Errors[1].Field != "peerReview" || result.Errors[1].Code != "OutOfOrder" {
		t.Fatalf("unexpected second error: %+v", result.Errors[1])
	}
}

func TestValidateReportsUnparseableDates(t *testing.T) {
	body := `{"reviewPeriod":{"start":"2024-13-01","end":"2024-12-31"}}`
	code, env := post(t, newTestRouter(t, nil, auth.RoleHR), "/timelines/validate", body)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !bytes.Contains(env.Data, []byte(`"InvalidDate"`)) || !bytes.Contains(env.Data, []byte(`"valid":false`)) {
		t.Fatalf("expected InvalidDate errors, got %s", env.Data)
	}
}

func TestResolveUsesAtOrClock(t *testing.T) {
	router := newTestRouter(t, metrics.New(), auth.RoleManager)

	code, env := post(t, router, "/timelines/resolve", `{"timeline":`+validTimeline+`}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if string(env.Data) != `{"currentPhase":"PeerReview","daysRemaining":8}` {
		t.Fatalf("unexpected status from clock: %s", env.Data)
	}

	code, env = post(t, router, "/timelines/resolve", `{"timeline":`+validTimeline+`,"at":"2024-09-28"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if string(env.Data) != `{"currentPhase":"NotStarted","daysRemaining":3}` {
		t.Fatalf("unexpected status for at: %s", env.Data)
	}

	code, env = post(t, router, "/timelines/resolve", `{"timeline":`+validTimeline+`,"at":"2024-09-28T23:30:00-05:00"}`)
	if code != http.StatusOK {
		t.Fatalf("expected RFC3339 at to be accepted, got %d %+v", code, env.Error)
	}
	if string(env.Data) != `{"currentPhase":"NotStarted","daysRemaining":3}` {
		t.Fatalf("unexpected status for RFC3339 at: %s", env.Data)
	}
}

func TestResolveRejectsInvalidTimeline(t *testing.T) {
	body := `{"timeline":{
  "reviewPeriod":   {"start": "2024-07-01", "end": "2024-12-31"},
  "selfAssessment": {"start": "2024-10-14", "end": "2024-10-01"},
  "peerReview":     {"start": "2024-10-15", "end": "2024-10-28"},
  "managerReview":  {"start": "2024-10-29", "end": "2024-11-11"}
}}`
	code, env := post(t, newTestRouter(t, nil, auth.RoleHR), "/timelines/resolve", body)
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %d %+v", code, env.Error)
	}
	if len(env.Error.Details.Fields) != 1 || env.Error.Details.Fields[0].Field != "selfAssessment" {
		t.Fatalf("unexpected fields: %+v", env.Error.Details.Fields)
	}
}

func TestResolveRejectsBadAt(t *testing.T) {
	code, env := post(t, newTestRouter(t, nil, auth.RoleHR), "/timelines/resolve", `{"timeline":`+validTimeline+`,"at":"20/10/2024"}`)
	if code != http.StatusBadRequest || env.Error == nil || len(env.Error.Details.Fields) != 1 {
		t.Fatalf("expected at to be rejected, got %d %+v", code, env.Error)
	}
	if f := env.Error.Details.Fields[0]; f.Field != "at" || f.Code != "InvalidDate" {
		t.Fatalf("unexpected field issue: %+v", f)
	}
}

func TestAggregate(t *testing.T) {
	body := `{"self":{"completed":1,"total":3},"peer":{"completed":2,"total":3},"manager":{"completed":0,"total":0}}`
	code, env := post(t, newTestRouter(t, nil, auth.RoleEmployee), "/progress/aggregate", body)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var snapshot struct {
		Self struct {
			Percentage int `json:"percentage"`
		} `json:"self"`
		Peer struct {
			Percentage int `json:"percentage"`
		} `json:"peer"`
		OverallPercentage int `json:"overallPercentage"`
	}
	if err := json.Unmarshal(env.Data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Self.Percentage != 33 || snapshot.Peer.Percentage != 67 || snapshot.OverallPercentage != 33 {
		t.Fatalf("unexpected snapshot: %s", env.Data)
	}
}

func TestAggregateRejectsCompletedAboveTotal(t *testing.T) {
	body := `{"self":{"completed":4,"total":3},"peer":{"completed":0,"total":0},"manager":{"completed":-1,"total":0}}`
	code, env := post(t, newTestRouter(t, nil, auth.RoleHR), "/progress/aggregate", body)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	fields := map[string]string{}
	for _, f := range env.Error.Details.Fields {
		fields[f.Field] = f.Code
	}
	if fields["self.completed"] != "ltefield" || fields["manager.completed"] != "min" {
		t.Fatalf("unexpected fields: %+v", env.Error.Details.Fields)
	}
}

func TestRoutesRequireAuthentication(t *testing.T) {
	code, env := post(t, newTestRouter(t, nil, ""), "/timelines/validate", validTimeline)
	if code != http.StatusUnauthorized || env.Error.Code != "unauthorized" {
		t.Fatalf("expected 401, got %d", code)
	}
}
