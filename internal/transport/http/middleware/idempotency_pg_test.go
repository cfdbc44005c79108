package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"perfreview/internal/platform/db/dbtest"
	"perfreview/internal/transport/http/middleware"
)

func TestPGIdempotencyStore(t *testing.T) {
	store := middleware.NewIdempotencyStore(dbtest.Open(t))
	tenantID := dbtest.TenantID()
	ctx := context.Background()
	hash := middleware.RequestHash([]byte(`{"name":"H2"}`))

	if _, found, err := store.Check(ctx, tenantID, "hr-1", "review_cycles.create", "k1", hash); err != nil || found {
		t.Fatalf("expected unknown key, got %v %v", found, err)
	}
	if err := store.Save(ctx, tenantID, "hr-1", "review_cycles.create", "k1", hash, json.RawMessage(`{"cycle":{"id":"c1"}}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored, found, err := store.Check(ctx, tenantID, "hr-1", "review_cycles.create", "k1", hash)
	if err != nil || !found {
		t.Fatalf("expected replay, got %v %v", found, err)
	}
	var body struct {
		Cycle struct {
			ID string `json:"id"`
		} `json:"cycle"`
	}
	if err := json.Unmarshal(stored, &body); err != nil || body.Cycle.ID != "c1" {
		t.Fatalf("unexpected stored response %s: %v", stored, err)
	}

	other := middleware.RequestHash([]byte(`{"name":"H1"}`))
	if _, _, err := store.Check(ctx, tenantID, "hr-1", "review_cycles.create", "k1", other); !errors.Is(err, middleware.ErrIdempotencyConflict) {
		t.Fatalf("expected conflict on check, got %v", err)
	}
	if err := store.Save(ctx, tenantID, "hr-1", "review_cycles.create", "k1", other, json.RawMessage(`{}`)); !errors.Is(err, middleware.ErrIdempotencyConflict) {
		t.Fatalf("expected conflict on save, got %v", err)
	}
	if _, found, err := store.Check(ctx, tenantID, "hr-2", "review_cycles.create", "k1", other); err != nil || found {
		t.Fatalf("expected keys to be scoped per user, got %v %v", found, err)
	}
}
