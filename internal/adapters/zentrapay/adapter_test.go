package zentrapay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/brpag/pix-gateway/internal/core/domain"
)

func testRequest() domain.ChargeRequest {
	return domain.ChargeRequest{
		Name:        "Maria Souza",
		Email:       "maria@example.com",
		CPF:         "11144477735",
		Phone:       "11987654321",
		Amount:      decimal.NewFromFloat(118.35),
		Description: "Pagamento via PIX",
	}
}

func newTestAdapter(serverURL string) *Adapter {
	return New(Config{
		BaseURL:         serverURL,
		APIKey:          "test-key",
		NotificationURL: "https://gateway.test/webhooks/zentrapay",
	})
}

func TestCreateChargeDataEnvelope(t *testing.T) {
	var gotReq createRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"id":         "zp_abc123",
				"status":     "pending",
				"amount":     118.35,
				"expires_at": "2024-01-15T13:00:00Z",
				"pix": map[string]any{
					"qr_code": "00020101021226840014br.gov.bcb.pix",
				},
			},
		})
	}))
	defer server.Close()

	charge, err := newTestAdapter(server.URL).CreateCharge(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotReq.Currency != "BRL" || gotReq.PaymentMethod != "pix" {
		t.Errorf("request currency/method = %q/%q", gotReq.Currency, gotReq.PaymentMethod)
	}
	if gotReq.Amount != 118.35 {
		t.Errorf("request amount = %v, want 118.35", gotReq.Amount)
	}
	if gotReq.Customer.Document.Number != "11144477735" {
		t.Errorf("document number = %q", gotReq.Customer.Document.Number)
	}
	if gotReq.ExternalID == "" {
		t.Error("external_id must be set")
	}
	if gotReq.NotificationURL != "https://gateway.test/webhooks/zentrapay" {
		t.Errorf("notification_url = %q", gotReq.NotificationURL)
	}

	if charge.TransactionID != "zp_abc123" {
		t.Errorf("transaction id = %q", charge.TransactionID)
	}
	if charge.PixCode == "" {
		t.Error("pix code must not be empty")
	}
	if charge.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", charge.Status)
	}
	if charge.Provider != "zentrapay" {
		t.Errorf("provider = %q", charge.Provider)
	}
	if !charge.Amount.Equal(decimal.NewFromFloat(118.35)) {
		t.Errorf("amount = %s, want 118.35", charge.Amount)
	}
	if charge.ExpiresAt == nil {
		t.Error("expires_at should have been parsed")
	}
}

func TestCreateChargeRootLevelBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"transaction_id": "zp_root9",
			"status":         "processing",
			"pix":            map[string]any{"pix_code": "00020101"},
		})
	}))
	defer server.Close()

	charge, err := newTestAdapter(server.URL).CreateCharge(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if charge.TransactionID != "zp_root9" {
		t.Errorf("transaction id = %q", charge.TransactionID)
	}
	if charge.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", charge.Status)
	}
	// Body carried no amount, so the request amount is kept.
	if !charge.Amount.Equal(decimal.NewFromFloat(118.35)) {
		t.Errorf("amount = %s, want request fallback", charge.Amount)
	}
}

func TestCreateChargeRejectedInBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "insufficient merchant balance",
		})
	}))
	defer server.Close()

	_, err := newTestAdapter(server.URL).CreateCharge(context.Background(), testRequest())
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	var svcErr *domain.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Message != "insufficient merchant balance" {
		t.Errorf("provider message not propagated: %v", err)
	}
}

func TestCreateChargeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestAdapter(server.URL).CreateCharge(context.Background(), testRequest())
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestCreateChargeMissingPixCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": "zp_1", "status": "pending"},
		})
	}))
	defer server.Close()

	_, err := newTestAdapter(server.URL).CreateCharge(context.Background(), testRequest())
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestCreateChargeNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestAdapter(server.URL).CreateCharge(context.Background(), testRequest())
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestCheckStatusPaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payments/zp_abc123" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"id":     "zp_abc123",
				"status": "approved",
				"amount": 118.35,
			},
		})
	}))
	defer server.Close()

	result, err := newTestAdapter(server.URL).CheckStatus(context.Background(), "zp_abc123")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.Status != domain.StatusPaid || !result.Paid {
		t.Errorf("status = %q paid=%v, want paid/true", result.Status, result.Paid)
	}
}

func TestCheckStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestAdapter(server.URL).CheckStatus(context.Background(), "zp_missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCheckStatusDegradesToPendingOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result, err := newTestAdapter(server.URL).CheckStatus(context.Background(), "zp_abc123")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.Status != domain.StatusPending || result.Paid {
		t.Errorf("status = %q paid=%v, want pending/false", result.Status, result.Paid)
	}
	if result.Provider != "zentrapay" {
		t.Errorf("provider = %q", result.Provider)
	}
}

func TestParseStatusTable(t *testing.T) {
	cases := map[string]domain.Status{
		"paid":            domain.StatusPaid,
		"APPROVED":        domain.StatusPaid,
		"pending":         domain.StatusPending,
		"waiting_payment": domain.StatusPending,
		"refused":         domain.StatusFailed,
		"expired":         domain.StatusExpired,
		"refunded":        domain.StatusCancelled,
		"whatever":        domain.StatusUnknown,
	}
	for raw, want := range cases {
		if got := parseStatus(raw); got != want {
			t.Errorf("parseStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}
