// Package zentrapay implements the payment provider port for the
// ZentraPay REST API.
package zentrapay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/platform/restclient"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

const (
	providerName    = "zentrapay"
	chargeExpirySec = 3600
)

// Config carries the ZentraPay credentials and endpoints.
type Config struct {
	BaseURL         string
	APIKey          string
	NotificationURL string
	Timeout         time.Duration
}

// Adapter talks to the ZentraPay payments API.
type Adapter struct {
	rc              *restclient.Client
	notificationURL string
}

// New builds a ZentraPay adapter. The API key is sent as a bearer token
// on every request.
func New(cfg Config) *Adapter {
	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}
	return &Adapter{
		rc:              restclient.New(cfg.BaseURL, cfg.Timeout, headers),
		notificationURL: cfg.NotificationURL,
	}
}

// Name returns the provider identifier used in logs and responses.
func (a *Adapter) Name() string {
	return providerName
}

type document struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type customer struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Document document `json:"document"`
	Phone    string   `json:"phone"`
}

type createRequest struct {
	Amount          float64  `json:"amount"`
	Currency        string   `json:"currency"`
	PaymentMethod   string   `json:"payment_method"`
	ExternalID      string   `json:"external_id"`
	Description     string   `json:"description"`
	Customer        customer `json:"customer"`
	NotificationURL string   `json:"notification_url,omitempty"`
	ExpiresIn       int      `json:"expires_in"`
}

type pixPayload struct {
	QRCode  string `json:"qr_code"`
	PixCode string `json:"pix_code"`
	Code    string `json:"code"`
}

// code returns the copy-and-paste payload under whichever key this
// deployment uses.
func (p pixPayload) code() string {
	for _, v := range []string{p.QRCode, p.PixCode, p.Code} {
		if v != "" {
			return v
		}
	}
	return ""
}

type paymentPayload struct {
	ID            string      `json:"id"`
	TransactionID string      `json:"transaction_id"`
	Status        string      `json:"status"`
	Amount        json.Number `json:"amount"`
	ExpiresAt     string      `json:"expires_at"`
	Pix           pixPayload  `json:"pix"`
}

func (p *paymentPayload) transactionID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.TransactionID
}

func (p *paymentPayload) amountOr(fallback decimal.Decimal) decimal.Decimal {
	if p.Amount == "" {
		return fallback
	}
	d, err := decimal.NewFromString(p.Amount.String())
	if err != nil {
		return fallback
	}
	return d
}

func (p *paymentPayload) expiresAt() *time.Time {
	if p.ExpiresAt == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return nil
	}
	return &t
}

// apiResponse covers both envelope shapes ZentraPay is known to return:
// the payment object wrapped under "data", or inlined at the root.
type apiResponse struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    *paymentPayload `json:"data"`
	paymentPayload
}

func (r *apiResponse) payment() *paymentPayload {
	if r.Data != nil {
		return r.Data
	}
	return &r.paymentPayload
}

func newExternalID() string {
	return fmt.Sprintf("ZENTRA-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

func parseStatus(raw string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "approved", "completed":
		return domain.StatusPaid
	case "pending", "processing", "created", "waiting_payment":
		return domain.StatusPending
	case "failed", "refused", "rejected", "error":
		return domain.StatusFailed
	case "expired":
		return domain.StatusExpired
	case "cancelled", "canceled", "refunded":
		return domain.StatusCancelled
	default:
		return domain.StatusUnknown
	}
}

// CreateCharge opens a PIX payment on ZentraPay and returns the charge
// with the provider's copy-and-paste payload.
func (a *Adapter) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	body := createRequest{
		Amount:        req.Amount.InexactFloat64(),
		Currency:      "BRL",
		PaymentMethod: "pix",
		ExternalID:    newExternalID(),
		Description:   req.Description,
		Customer: customer{
			Name:     req.Name,
			Email:    req.Email,
			Document: document{Type: "cpf", Number: req.CPF},
			Phone:    req.Phone,
		},
		NotificationURL: a.notificationURL,
		ExpiresIn:       chargeExpirySec,
	}

	resp, err := a.rc.DoJSON(ctx, http.MethodPost, "/v1/payments", nil, body, nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, domain.NewServiceError(domain.ErrProvider,
			fmt.Sprintf("zentrapay returned status %d", resp.StatusCode), "PROVIDER_ERROR")
	}

	var out apiResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Success != nil && !*out.Success {
		msg := out.Message
		if msg == "" {
			msg = "zentrapay rejected the charge"
		}
		return nil, domain.NewServiceError(domain.ErrProvider, msg, "PROVIDER_REJECTED")
	}

	payment := out.payment()
	if payment.transactionID() == "" || payment.Pix.code() == "" {
		return nil, domain.NewServiceError(domain.ErrProvider,
			"zentrapay response missing transaction id or pix code", "PROVIDER_BAD_BODY")
	}

	status := parseStatus(payment.Status)
	if payment.Status == "" {
		status = domain.StatusPending
	}

	return &domain.Charge{
		TransactionID: payment.transactionID(),
		PixCode:       payment.Pix.code(),
		Status:        status,
		Amount:        payment.amountOr(req.Amount),
		Provider:      providerName,
		ExpiresAt:     payment.expiresAt(),
		CreatedAt:     time.Now(),
	}, nil
}

// CheckStatus queries one payment by the id ZentraPay assigned to it.
// Only an explicit 404 becomes ErrNotFound; any other failure degrades
// to a pending result so a polling loop keeps running.
func (a *Adapter) CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	resp, err := a.rc.DoJSON(ctx, http.MethodGet, "/v1/payments/"+transactionID, nil, nil, nil)
	if err != nil {
		return a.pendingResult(transactionID, err), nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			"zentrapay has no payment "+transactionID, "PAYMENT_NOT_FOUND")
	}
	if !resp.Success() {
		return a.pendingResult(transactionID,
			fmt.Errorf("zentrapay returned status %d", resp.StatusCode)), nil
	}

	var out apiResponse
	if err := resp.Decode(&out); err != nil {
		return a.pendingResult(transactionID, err), nil
	}
	payment := out.payment()
	status := parseStatus(payment.Status)

	return &domain.StatusResult{
		TransactionID: transactionID,
		Status:        status,
		Paid:          status == domain.StatusPaid,
		Amount:        payment.amountOr(decimal.Zero),
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
