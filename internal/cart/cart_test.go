package cart

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kopipos/backend/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if c.SessionID != "sess-1" || len(c.Lines) != 0 {
		t.Fatalf("expected empty cart for new session, got %+v", c)
	}

	c.Lines = append(c.Lines, domain.CartLine{
		ProductID: "prod-1",
		Name:      "Kopi",
		UnitPrice: decimal.NewFromInt(300),
		Quantity:  2,
	})
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	c.Lines[0].Quantity = 99

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Lines) != 1 || got.Lines[0].Quantity != 2 {
		t.Fatalf("expected stored quantity 2, got %+v", got.Lines)
	}

	if err := s.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	got, err = s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Lines) != 0 {
		t.Fatalf("expected cleared cart, got %d lines", len(got.Lines))
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.carts["sess-old"] = domain.Cart{
		SessionID: "sess-old",
		Lines:     []domain.CartLine{{ProductID: "prod-1", Quantity: 1}},
		UpdatedAt: time.Now().UTC().Add(-TTL - time.Minute),
	}

	got, err := s.Get(ctx, "sess-old")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Lines) != 0 {
		t.Fatalf("expected expired cart to read empty, got %+v", got.Lines)
	}
}

func TestMemoryStoreSessionsIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, _ := s.Get(ctx, "sess-a")
	a.Lines = append(a.Lines, domain.CartLine{ProductID: "prod-1", Quantity: 1})
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	b, err := s.Get(ctx, "sess-b")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(b.Lines) != 0 {
		t.Fatalf("expected session isolation, got %+v", b.Lines)
	}
}
