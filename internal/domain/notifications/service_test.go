package notifications

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memStore struct {
	rows []Notification
	err  error
}

func (m *memStore) CreateNotification(_ context.Context, n Notification) error {
	if m.err != nil {
		return m.err
	}
	n.ID = "n" + string(rune('0'+len(m.rows)+1))
	n.CreatedAt = time.Date(2024, 10, 1, 0, len(m.rows), 0, 0, time.UTC)
	m.rows = append(m.rows, n)
	return nil
}

func (m *memStore) ListNotifications(_ context.Context, tenantID, userID string, unreadOnly bool, _, _ int) ([]Notification, error) {
	var out []Notification
	for _, n := range m.rows {
		if n.TenantID == tenantID && n.UserID == userID && (!unreadOnly || n.ReadAt == nil) {
			out = append(out, n)
		}
	}
	return out, m.err
}

func (m *memStore) CountNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool) (int, error) {
	out, err := m.ListNotifications(ctx, tenantID, userID, unreadOnly, 0, 0)
	return len(out), err
}

func (m *memStore) MarkRead(_ context.Context, tenantID, userID, id string) (bool, error) {
	for i, n := range m.rows {
		if n.ID == id && n.TenantID == tenantID && n.UserID == userID {
			now := time.Now()
			m.rows[i].ReadAt = &now
			return true, nil
		}
	}
	return false, nil
}

func TestCreateListAndMarkRead(t *testing.T) {
	store := &memStore{}
	svc := New(store)
	ctx := context.Background()

	if err := svc.Create(ctx, "t1", "emp-1", TypeReviewAssigned, "Self assessment assigned", "H2 2024", "a1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Create(ctx, "t1", "mgr-1", TypeReviewAssigned, "Peer review assigned", "H2 2024", "a2"); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := svc.List(ctx, "t1", "emp-1", false, 10, 0)
	if err != nil || len(list) != 1 || list[0].EntityID != "a1" {
		t.Fatalf("unexpected list: %+v %v", list, err)
	}

	if err := svc.MarkRead(ctx, "t1", "emp-1", list[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if unread, _ := svc.Count(ctx, "t1", "emp-1", true); unread != 0 {
		t.Fatalf("expected no unread notifications, got %d", unread)
	}
	if err := svc.MarkRead(ctx, "t1", "emp-1", "n2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user's notification to be not found, got %v", err)
	}
}

func TestCreateRequiresRecipient(t *testing.T) {
	if err := New(&memStore{}).Create(context.Background(), "t1", " ", TypeReviewAssigned, "x", "y", ""); err == nil {
		t.Fatal("expected missing recipient to fail")
	}
}

func TestListNeverReturnsNil(t *testing.T) {
	list, err := New(&memStore{}).List(context.Background(), "t1", "nobody", false, 10, 0)
	if err != nil || list == nil {
		t.Fatalf("expected empty slice, got %v %v", list, err)
	}
}
