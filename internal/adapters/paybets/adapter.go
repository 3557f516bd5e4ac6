// Package paybets implements the payment provider port for the PayBets
// deposit API.
package paybets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/platform/restclient"
)

const (
	providerName   = "paybets"
	issuedCapacity = 1000
)

// Config carries the PayBets credentials and endpoints.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Timeout      time.Duration
}

// Adapter talks to the PayBets API. Authentication is a JWT obtained
// from the login endpoint and refreshed when a call comes back 401.
type Adapter struct {
	rc           *restclient.Client
	clientID     string
	clientSecret string
	callbackURL  string

	mu     sync.Mutex
	token  string
	issued map[string]time.Time
}

// New builds a PayBets adapter. The first token is fetched lazily on
// the first charge.
func New(cfg Config) *Adapter {
	return &Adapter{
		rc:           restclient.New(cfg.BaseURL, cfg.Timeout, nil),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		callbackURL:  cfg.CallbackURL,
		issued:       make(map[string]time.Time),
	}
}

// Name returns the provider identifier used in logs and responses.
func (a *Adapter) Name() string {
	return providerName
}

type loginRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// The deposit payload mixes snake_case and camelCase field names. That
// is what the API accepts, not a mistake to clean up.
type depositRequest struct {
	Amount            float64 `json:"amount"`
	ExternalID        string  `json:"external_id"`
	ClientCallbackURL string  `json:"clientCallbackUrl,omitempty"`
	Payer             payer   `json:"payer"`
}

type payer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
}

type depositResponse struct {
	Message        string `json:"message"`
	QRCodeResponse struct {
		TransactionID string      `json:"transactionId"`
		QRCode        string      `json:"qrcode"`
		Status        string      `json:"status"`
		Amount        json.Number `json:"amount"`
	} `json:"qrCodeResponse"`
}

func newExternalID() string {
	return fmt.Sprintf("PIX-%s-%s", time.Now().Format("20060102150405"), uuid.NewString()[:8])
}

func parseStatus(raw string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "completed", "approved":
		return domain.StatusPaid
	case "", "pending", "processing":
		return domain.StatusPending
	case "failed", "refused", "error":
		return domain.StatusFailed
	case "expired":
		return domain.StatusExpired
	case "cancelled", "canceled":
		return domain.StatusCancelled
	default:
		return domain.StatusUnknown
	}
}

// authToken returns the cached JWT, logging in when there is none or
// when force is set after a 401.
func (a *Adapter) authToken(ctx context.Context, force bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && !force {
		return a.token, nil
	}

	body := loginRequest{ClientID: a.clientID, ClientSecret: a.clientSecret}
	resp, err := a.rc.DoJSON(ctx, http.MethodPost, "/api/auth/login", nil, body, nil)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", domain.NewServiceError(domain.ErrAuth,
			fmt.Sprintf("paybets login returned status %d", resp.StatusCode), "AUTH_FAILED")
	}

	var out loginResponse
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", domain.NewServiceError(domain.ErrAuth,
			"paybets login response missing token", "AUTH_FAILED")
	}

	a.token = out.Token
	return a.token, nil
}

func (a *Adapter) deposit(ctx context.Context, body depositRequest, forceAuth bool) (*restclient.Response, error) {
	token, err := a.authToken(ctx, forceAuth)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	return a.rc.DoJSON(ctx, http.MethodPost, "/api/payments/deposit", nil, body, headers)
}

// CreateCharge opens a PIX deposit on PayBets. A 401 invalidates the
// cached token and the call is retried once with a fresh one.
func (a *Adapter) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	body := depositRequest{
		Amount:            req.Amount.InexactFloat64(),
		ExternalID:        newExternalID(),
		ClientCallbackURL: a.callbackURL,
		Payer: payer{
			Name:     req.Name,
			Email:    req.Email,
			Document: req.CPF,
		},
	}

	resp, err := a.deposit(ctx, body, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp, err = a.deposit(ctx, body, true)
		if err != nil {
			return nil, err
		}
	}
	if !resp.Success() {
		return nil, domain.NewServiceError(domain.ErrProvider,
			fmt.Sprintf("paybets returned status %d", resp.StatusCode), "PROVIDER_ERROR")
	}

	var out depositResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	qr := out.QRCodeResponse
	if qr.TransactionID == "" || qr.QRCode == "" {
		return nil, domain.NewServiceError(domain.ErrProvider,
			"paybets response missing transaction id or pix code", "PROVIDER_BAD_BODY")
	}

	amount := req.Amount
	if qr.Amount != "" {
		if d, err := decimal.NewFromString(qr.Amount.String()); err == nil {
			amount = d
		}
	}

	a.recordIssued(qr.TransactionID)

	return &domain.Charge{
		TransactionID: qr.TransactionID,
		PixCode:       qr.QRCode,
		Status:        parseStatus(qr.Status),
		Amount:        amount,
		Provider:      providerName,
		CreatedAt:     time.Now(),
	}, nil
}

// CheckStatus reports the local best-effort state. PayBets exposes no
// payment lookup endpoint, so charges created by this process stay
// pending until a webhook says otherwise and any other id is unknown.
func (a *Adapter) CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	a.mu.Lock()
	_, known := a.issued[transactionID]
	a.mu.Unlock()

	if !known {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			"paybets has no record of "+transactionID, "PAYMENT_NOT_FOUND")
	}
	return &domain.StatusResult{
		TransactionID: transactionID,
		Status:        domain.StatusPending,
		Paid:          false,
		Amount:        decimal.Zero,
		Provider:      providerName,
	}, nil
}

func (a *Adapter) recordIssued(transactionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.issued) >= issuedCapacity {
		var oldestID string
		var oldestAt time.Time
		for id, at := range a.issued {
			if oldestID == "" || at.Before(oldestAt) {
				oldestID = id
				oldestAt = at
			}
		}
		delete(a.issued, oldestID)
	}
	a.issued[transactionID] = time.Now()
}
