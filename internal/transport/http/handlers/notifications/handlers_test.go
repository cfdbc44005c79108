package notificationshandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"perfreview/internal/domain/auth"
	"perfreview/internal/domain/notifications"
	"perfreview/internal/transport/http/middleware"
)

type stubStore struct {
	rows   []notifications.Notification
	marked []string
}

func (s *stubStore) CreateNotification(context.Context, notifications.Notification) error {
	return nil
}

func (s *stubStore) ListNotifications(_ context.Context, _, userID string, _ bool, _, _ int) ([]notifications.Notification, error) {
	var out []notifications.Notification
	for _, n := range s.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubStore) CountNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool) (int, error) {
	out, _ := s.ListNotifications(ctx, tenantID, userID, unreadOnly, 0, 0)
	return len(out), nil
}

func (s *stubStore) MarkRead(_ context.Context, _, userID, id string) (bool, error) {
	for _, n := range s.rows {
		if n.ID == id && n.UserID == userID {
			s.marked = append(s.marked, id)
			return true, nil
		}
	}
	return false, nil
}

func serve(store *stubStore, userID, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUser(req.Context(), auth.UserContext{UserID: userID, TenantID: "t1", RoleName: auth.RoleEmployee})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(notifications.New(store), auth.StaticPermissions{}).RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestListOwnNotifications(t *testing.T) {
	store := &stubStore{rows: []notifications.Notification{
		{ID: "n1", UserID: "emp-1", Type: notifications.TypeReviewAssigned, Title: "Self assessment assigned", CreatedAt: time.Now()},
		{ID: "n2", UserID: "mgr-1", Type: notifications.TypeReviewAssigned, Title: "Peer review assigned", CreatedAt: time.Now()},
	}}
	rec := serve(store, "emp-1", http.MethodGet, "/notifications")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Total-Count") != "1" || !strings.Contains(rec.Body.String(), `"id":"n1"`) || strings.Contains(rec.Body.String(), `"id":"n2"`) {
		t.Fatalf("unexpected list: %s", rec.Body.String())
	}
}

func TestMarkRead(t *testing.T) {
	store := &stubStore{rows: []notifications.Notification{{ID: "n1", UserID: "emp-1"}}}
	rec := serve(store, "emp-1", http.MethodPost, "/notifications/n1/read")
	if rec.Code != http.StatusOK || len(store.marked) != 1 {
		t.Fatalf("expected notification to be marked, got %d %v", rec.Code, store.marked)
	}
	rec = serve(store, "mgr-1", http.MethodPost, "/notifications/n1/read")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's notification, got %d", rec.Code)
	}
}
