// Package ironpay implements the payment provider port for the Iron Pay
// public API.
package ironpay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/platform/restclient"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

const providerName = "ironpay"

// Iron Pay requires a full customer address on the transaction even for
// PIX. These stand in when the caller has none to give.
const (
	defaultStreet       = "Não informado"
	defaultNumber       = "s/n"
	defaultNeighborhood = "Centro"
	defaultCity         = "São Paulo"
	defaultState        = "SP"
	defaultZipCode      = "01000000"
)

// Config carries the Iron Pay token and endpoints.
type Config struct {
	BaseURL     string
	APIToken    string
	PostbackURL string
	Timeout     time.Duration
}

// Adapter talks to the Iron Pay API. The token travels as a query
// parameter on every call, which is how this API authenticates.
type Adapter struct {
	rc       *restclient.Client
	apiToken string
}

// New builds an Iron Pay adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		rc:       restclient.New(cfg.BaseURL, cfg.Timeout, nil),
		apiToken: cfg.APIToken,
	}
}

// Name returns the provider identifier used in logs and responses.
func (a *Adapter) Name() string {
	return providerName
}

type customer struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phone_number"`
	Document     string `json:"document"`
	StreetName   string `json:"street_name"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
}

type cartItem struct {
	ProductHash   string `json:"product_hash"`
	Title         string `json:"title"`
	Price         int64  `json:"price"`
	Quantity      int    `json:"quantity"`
	OperationType int    `json:"operation_type"`
	Tangible      bool   `json:"tangible"`
}

type createRequest struct {
	Amount            int64      `json:"amount"`
	OfferHash         string     `json:"offer_hash"`
	PaymentMethod     string     `json:"payment_method"`
	Customer          customer   `json:"customer"`
	Cart              []cartItem `json:"cart"`
	Installments      int        `json:"installments"`
	ExpireInDays      int        `json:"expire_in_days"`
	TransactionOrigin string     `json:"transaction_origin"`
	PostbackURL       string     `json:"postback_url,omitempty"`
}

type apiResponse struct {
	Hash    string `json:"hash"`
	PixCode string `json:"pix_code"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Message string `json:"message"`
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.NewFromInt(c).Shift(-2)
}

func parseStatus(raw string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "approved", "finished":
		return domain.StatusPaid
	case "", "pending", "waiting_payment", "processing":
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

func (a *Adapter) tokenQuery() url.Values {
	return url.Values{"api_token": []string{a.apiToken}}
}

// CreateCharge opens a PIX transaction on Iron Pay. Offer and product
// hashes are minted per request, as the API only uses them to label the
// cart.
func (a *Adapter) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	cents := toCents(req.Amount)
	body := createRequest{
		Amount:        cents,
		OfferHash:     "offer_" + uuid.New().String()[:5],
		PaymentMethod: "pix",
		Customer: customer{
			Name:         req.Name,
			Email:        req.Email,
			PhoneNumber:  req.Phone,
			Document:     req.CPF,
			StreetName:   defaultStreet,
			Number:       defaultNumber,
			Neighborhood: defaultNeighborhood,
			City:         defaultCity,
			State:        defaultState,
			ZipCode:      defaultZipCode,
		},
		Cart: []cartItem{{
			ProductHash:   "prod_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:10],
			Title:         req.Description,
			Price:         cents,
			Quantity:      1,
			OperationType: 1,
			Tangible:      false,
		}},
		Installments:      1,
		ExpireInDays:      1,
		TransactionOrigin: "api",
	}

	resp, err := a.rc.DoJSON(ctx, http.MethodPost, "/public/v1/transactions", a.tokenQuery(), body, nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, domain.NewServiceError(domain.ErrProvider,
			fmt.Sprintf("ironpay returned status %d", resp.StatusCode), "PROVIDER_ERROR")
	}

	var out apiResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Hash == "" || out.PixCode == "" {
		return nil, domain.NewServiceError(domain.ErrProvider,
			"ironpay response missing transaction hash or pix code", "PROVIDER_BAD_BODY")
	}

	amount := req.Amount
	if out.Amount > 0 {
		amount = fromCents(out.Amount)
	}

	return &domain.Charge{
		TransactionID: out.Hash,
		PixCode:       out.PixCode,
		Status:        parseStatus(out.Status),
		Amount:        amount,
		Provider:      providerName,
		CreatedAt:     time.Now(),
	}, nil
}

// CheckStatus queries one transaction by the hash Iron Pay assigned. A
// 404 becomes ErrNotFound; every other failure degrades to a pending
// result so a polling loop keeps running.
func (a *Adapter) CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	resp, err := a.rc.DoJSON(ctx, http.MethodGet, "/public/v1/transactions/"+transactionID, a.tokenQuery(), nil, nil)
	if err != nil {
		return a.pendingResult(transactionID, err), nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			"ironpay has no transaction "+transactionID, "PAYMENT_NOT_FOUND")
	}
	if !resp.Success() {
		return a.pendingResult(transactionID,
			fmt.Errorf("ironpay returned status %d", resp.StatusCode)), nil
	}

	var out apiResponse
	if err := resp.Decode(&out); err != nil {
		return a.pendingResult(transactionID, err), nil
	}

	status := parseStatus(out.Status)
	return &domain.StatusResult{
		TransactionID: transactionID,
		Status:        status,
		Paid:          status == domain.StatusPaid,
		Amount:        fromCents(out.Amount),
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
