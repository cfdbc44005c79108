package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"-"`
	UserID    string     `json:"-"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	EntityID  string     `json:"entityId,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Service stores in-app notifications for reviewers. Delivery by email is
// left to the identity provider, which owns user addresses.
type Service struct {
	store StoreAPI
}

func New(store StoreAPI) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, tenantID, userID, ntype, title, body, entityID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("notification recipient required")
	}
	return s.store.CreateNotification(ctx, Notification{
		TenantID: tenantID,
		UserID:   userID,
		Type:     ntype,
		Title:    title,
		Body:     body,
		EntityID: entityID,
	})
}

func (s *Service) List(ctx context.Context, tenantID, userID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	out, err := s.store.ListNotifications(ctx, tenantID, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

func (s *Service) Count(ctx context.Context, tenantID, userID string, unreadOnly bool) (int, error) {
	return s.store.CountNotifications(ctx, tenantID, userID, unreadOnly)
}

// MarkRead marks one of the user's notifications as read. Marking an already
// read notification is not an error.
func (s *Service) MarkRead(ctx context.Context, tenantID, userID, notificationID string) error {
	found, err := s.store.MarkRead(ctx, tenantID, userID, notificationID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}
