package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kopipos/backend/internal/cart"
	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/service"
	"kopipos/backend/internal/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, cart.NewMemoryStore())
	auth := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, repo)
	api := New(svc, auth, "http://127.0.0.1:3000")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d", username, resp.StatusCode)
	}
	var body domain.LoginResponse
	decodeBody(t, resp, &body)
	if body.AccessToken == "" {
		t.Fatalf("login as %s returned empty token", username)
	}
	return body.AccessToken
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginRateLimited(t *testing.T) {
	srv := newTestServer(t)

	var last int
	for i := 0; i < 6; i++ {
		resp := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
			Username: "admin",
			Password: "wrong",
		})
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/products")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", resp.StatusCode)
	}
}

func TestStaffForbiddenFromAdminOperations(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "sari", "staff123")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:         "Kopi Hitam",
		SellingPrice: decimal.NewFromInt(250),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for staff product create, got %d", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/admin/reset", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for staff reset, got %d", resp.StatusCode)
	}
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "sari", "staff123")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/cart/lines", token, domain.CartLineRequest{
		ProductID: "prod-kopi-tubruk",
		Quantity:  2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 adding cart line, got %d", resp.StatusCode)
	}
	var c domain.Cart
	decodeBody(t, resp, &c)
	if len(c.Lines) != 1 || c.Lines[0].AssignedStaff != "sari" {
		t.Fatalf("unexpected cart: %+v", c)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		CashReceived: decimal.NewFromInt(1000),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on checkout, got %d", resp.StatusCode)
	}
	var receipt domain.Receipt
	decodeBody(t, resp, &receipt)
	if !receipt.Sale.Total.Equal(decimal.NewFromInt(660)) {
		t.Fatalf("expected total 660, got %s", receipt.Sale.Total)
	}
	if !receipt.Sale.Change.Equal(decimal.NewFromInt(340)) {
		t.Fatalf("expected change 340, got %s", receipt.Sale.Change)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/sales/"+receipt.Sale.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d", resp.StatusCode)
	}
	var sale domain.Sale
	decodeBody(t, resp, &sale)
	if sale.ID != receipt.Sale.ID || len(sale.Items) != 1 {
		t.Fatalf("unexpected sale: %+v", sale)
	}

	// Cart is empty again after checkout.
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/cart", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching cart, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &c)
	if len(c.Lines) != 0 {
		t.Fatalf("expected empty cart after checkout, got %d lines", len(c.Lines))
	}
}

func TestEachLoginGetsFreshCart(t *testing.T) {
	srv := newTestServer(t)

	first := login(t, srv, "sari", "staff123")
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/cart/lines", first, domain.CartLineRequest{
		ProductID: "prod-kopi-tubruk",
		Quantity:  1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 adding cart line, got %d", resp.StatusCode)
	}

	second := login(t, srv, "sari", "staff123")
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/cart", second, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching cart, got %d", resp.StatusCode)
	}
	var c domain.Cart
	decodeBody(t, resp, &c)
	if len(c.Lines) != 0 {
		t.Fatalf("expected fresh session to start empty, got %d lines", len(c.Lines))
	}
}

func TestServiceErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "admin123")

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/products/nope", admin, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/settlements/settle", admin, domain.SettleUpRequest{
		ActualCash: decimal.NewFromInt(100),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 settling without a float, got %d", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/products", admin, domain.ProductCreateRequest{
		Name:         "Kopi Tubruk",
		SellingPrice: decimal.NewFromInt(250),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/checkout", admin, domain.CheckoutRequest{
		CashReceived: decimal.NewFromInt(100),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty-cart checkout, got %d", resp.StatusCode)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "admin123")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/stock/adjust", admin, map[string]any{
		"product_id": "prod-kopi-tubruk",
		"kind":       "in",
		"quantity":   1,
		"bogus":      true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestSettlementOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "admin123")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/settlements/float", admin, domain.SetCashFloatRequest{
		CashFloat: decimal.NewFromInt(10000),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 setting float, got %d", resp.StatusCode)
	}
	var settlement domain.Settlement
	decodeBody(t, resp, &settlement)
	if settlement.Status != domain.SettlementFloatSet {
		t.Fatalf("expected float-set status, got %s", settlement.Status)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/settlements/settle", admin, domain.SettleUpRequest{
		ActualCash: decimal.NewFromInt(9500),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 settling, got %d", resp.StatusCode)
	}
	var settled domain.SettlementResponse
	decodeBody(t, resp, &settled)
	if settled.Settlement.Status != domain.SettlementSettled {
		t.Fatalf("expected settled status, got %s", settled.Settlement.Status)
	}
	if settled.Warning == "" {
		t.Fatalf("expected discrepancy warning for short drawer")
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/settlements/"+settled.Settlement.Date, admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching settlement, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &settlement)
	if settlement.Discrepancy == nil || !settlement.Discrepancy.Equal(decimal.NewFromInt(-500)) {
		t.Fatalf("expected discrepancy -500, got %v", settlement.Discrepancy)
	}
}
