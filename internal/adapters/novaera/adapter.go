// Package novaera implements the payment provider port for the Nova Era
// transactions API.
package novaera

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/platform/restclient"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

const providerName = "novaera"

// Config carries the Nova Era key pair and endpoints.
type Config struct {
	BaseURL     string
	SecretKey   string
	PublicKey   string
	PostbackURL string
	Timeout     time.Duration
}

// Adapter talks to the Nova Era API. Amounts cross the wire in
// centavos.
type Adapter struct {
	rc          *restclient.Client
	postbackURL string
}

// New builds a Nova Era adapter. Credentials go out as Basic auth with
// the secret key first, which is the order the API expects.
func New(cfg Config) *Adapter {
	token := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":" + cfg.PublicKey))
	headers := map[string]string{
		"Authorization": "Basic " + token,
	}
	return &Adapter{
		rc:          restclient.New(cfg.BaseURL, cfg.Timeout, headers),
		postbackURL: cfg.PostbackURL,
	}
}

// Name returns the provider identifier used in logs and responses.
func (a *Adapter) Name() string {
	return providerName
}

type document struct {
	Number string `json:"number"`
	Type   string `json:"type"`
}

type customer struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Document document `json:"document"`
}

type item struct {
	Tangible  bool   `json:"tangible"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Title     string `json:"title"`
}

type createRequest struct {
	Customer      customer `json:"customer"`
	Items         []item   `json:"items"`
	PostbackURL   string   `json:"postbackUrl,omitempty"`
	Amount        int64    `json:"amount"`
	PaymentMethod string   `json:"paymentMethod"`
}

type apiError struct {
	Message string `json:"message"`
}

type transactionData struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
	Amount int64       `json:"amount"`
	Pix    struct {
		QRCode    string `json:"qrcode"`
		ExpiresAt string `json:"expires_at"`
	} `json:"pix"`
}

type apiResponse struct {
	Success bool             `json:"success"`
	Error   *apiError        `json:"error"`
	Data    *transactionData `json:"data"`
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.NewFromInt(c).Shift(-2)
}

func parseStatus(raw string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "approved":
		return domain.StatusPaid
	case "", "waiting_payment", "pending", "processing":
		return domain.StatusPending
	case "failed", "refused", "rejected":
		return domain.StatusFailed
	case "expired":
		return domain.StatusExpired
	case "cancelled", "canceled", "refunded", "chargedback":
		return domain.StatusCancelled
	default:
		return domain.StatusUnknown
	}
}

func (r *apiResponse) errorMessage(fallback string) string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return fallback
}

// CreateCharge opens a PIX transaction on Nova Era and returns the
// charge with the provider's copy-and-paste payload.
func (a *Adapter) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	cents := toCents(req.Amount)
	body := createRequest{
		Customer: customer{
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			Document: document{Number: req.CPF, Type: "cpf"},
		},
		Items: []item{{
			Tangible:  false,
			Quantity:  1,
			UnitPrice: cents,
			Title:     req.Description,
		}},
		PostbackURL:   a.postbackURL,
		Amount:        cents,
		PaymentMethod: "pix",
	}

	resp, err := a.rc.DoJSON(ctx, http.MethodPost, "/transactions", nil, body, nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, domain.NewServiceError(domain.ErrProvider,
			fmt.Sprintf("novaera returned status %d", resp.StatusCode), "PROVIDER_ERROR")
	}

	var out apiResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, domain.NewServiceError(domain.ErrProvider,
			out.errorMessage("novaera rejected the charge"), "PROVIDER_REJECTED")
	}
	if out.Data == nil || out.Data.ID.String() == "" || out.Data.Pix.QRCode == "" {
		return nil, domain.NewServiceError(domain.ErrProvider,
			"novaera response missing transaction id or pix code", "PROVIDER_BAD_BODY")
	}

	amount := req.Amount
	if out.Data.Amount > 0 {
		amount = fromCents(out.Data.Amount)
	}

	var expiresAt *time.Time
	if raw := out.Data.Pix.ExpiresAt; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			expiresAt = &t
		}
	}

	return &domain.Charge{
		TransactionID: out.Data.ID.String(),
		PixCode:       out.Data.Pix.QRCode,
		Status:        parseStatus(out.Data.Status),
		Amount:        amount,
		Provider:      providerName,
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now(),
	}, nil
}

// CheckStatus queries one transaction by the id Nova Era assigned. A 404
// becomes ErrNotFound; every other failure degrades to a pending result
// so a polling loop keeps running.
func (a *Adapter) CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	resp, err := a.rc.DoJSON(ctx, http.MethodGet, "/transactions/"+transactionID, nil, nil, nil)
	if err != nil {
		return a.pendingResult(transactionID, err), nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			"novaera has no transaction "+transactionID, "PAYMENT_NOT_FOUND")
	}
	if !resp.Success() {
		return a.pendingResult(transactionID,
			fmt.Errorf("novaera returned status %d", resp.StatusCode)), nil
	}

	var out apiResponse
	if err := resp.Decode(&out); err != nil {
		return a.pendingResult(transactionID, err), nil
	}
	if !out.Success || out.Data == nil {
		return a.pendingResult(transactionID,
			fmt.Errorf("%s", out.errorMessage("novaera status lookup failed"))), nil
	}

	status := parseStatus(out.Data.Status)
	return &domain.StatusResult{
		TransactionID: transactionID,
		Status:        status,
		Paid:          status == domain.StatusPaid,
		Amount:        fromCents(out.Data.Amount),
		Provider:      providerName,
	}, nil
}

// pendingResult is the degraded answer for a status poll that could not
// complete. The charge may still be live, so the caller keeps polling.
func (a *Adapter) pendingResult(transactionID string, cause error) *domain.StatusResult {
	telemetry.Logger.Warn("status lookup degraded to pending",
		zap.String("provider", providerName),
		zap.String("transaction_id", transactionID),
		zap.Error(cause))
	return &domain.StatusResult{
		TransactionID: transactionID,
		Status:        domain.StatusPending,
		Paid:          false,
		Amount:        decimal.Zero,
		Provider:      providerName,
	}
}
