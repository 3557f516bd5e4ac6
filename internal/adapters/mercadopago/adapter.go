// Package mercadopago implements the payment provider port using the
// official Mercado Pago SDK.
package mercadopago

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

const providerName = "mercadopago"

// Config carries the Mercado Pago credentials.
type Config struct {
	AccessToken     string
	NotificationURL string
	WebhookSecret   string
}

// Adapter creates PIX payments through the Mercado Pago SDK.
type Adapter struct {
	client          payment.Client
	notificationURL string
}

// New builds a Mercado Pago adapter. The SDK config only fails on an
// empty token, which the caller screens before wiring the provider.
func New(cfg Config) (*Adapter, error) {
	sdkCfg, err := config.New(cfg.AccessToken)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrAuth,
			"failed to configure mercadopago sdk", "MP_CONFIG_ERROR")
	}
	return &Adapter{
		client:          payment.NewClient(sdkCfg),
		notificationURL: cfg.NotificationURL,
	}, nil
}

// Name returns the provider identifier used in logs and responses.
func (a *Adapter) Name() string {
	return providerName
}

func parseStatus(raw string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved":
		return domain.StatusPaid
	case "", "pending", "in_process", "authorized":
		return domain.StatusPending
	case "rejected":
		return domain.StatusFailed
	case "expired":
		return domain.StatusExpired
	case "cancelled", "refunded", "charged_back":
		return domain.StatusCancelled
	default:
		return domain.StatusUnknown
	}
}

// CreateCharge opens a PIX payment on Mercado Pago. The SDK hands back
// the copy-and-paste payload and a ready-made QR image.
func (a *Adapter) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	mpReq := payment.Request{
		TransactionAmount: req.Amount.InexactFloat64(),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		Payer: &payment.PayerRequest{
			Email:     req.Email,
			FirstName: req.Name,
			Identification: &payment.IdentificationRequest{
				Type:   "CPF",
				Number: req.CPF,
			},
		},
		ExternalReference: "PIX-" + strconv.FormatInt(time.Now().Unix(), 10),
		NotificationURL:   a.notificationURL,
	}

	result, err := a.client.Create(ctx, mpReq)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrProvider,
			"mercadopago create failed: "+err.Error(), "MP_PAYMENT_ERROR")
	}

	pixCode := result.PointOfInteraction.TransactionData.QRCode
	var qrImage string
	if b64 := result.PointOfInteraction.TransactionData.QRCodeBase64; b64 != "" {
		qrImage = "data:image/png;base64," + b64
	}
	if pixCode == "" {
		return nil, domain.NewServiceError(domain.ErrProvider,
			"mercadopago response missing pix payload", "PROVIDER_BAD_BODY")
	}

	amount := req.Amount
	if result.TransactionAmount > 0 {
		amount = decimal.NewFromFloat(result.TransactionAmount)
	}

	var expiresAt *time.Time
	if !result.DateOfExpiration.IsZero() {
		t := result.DateOfExpiration
		expiresAt = &t
	}

	return &domain.Charge{
		TransactionID: strconv.Itoa(result.ID),
		PixCode:       pixCode,
		QRCode:        qrImage,
		Status:        parseStatus(result.Status),
		Amount:        amount,
		Provider:      providerName,
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now(),
	}, nil
}

// CheckStatus queries one payment by the numeric id Mercado Pago
// assigned. Ids minted by other providers never parse, so they map to
// not found without a network call. Failures other than not-found
// degrade to a pending result so a polling loop keeps running.
func (a *Adapter) CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	id, err := strconv.Atoi(transactionID)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			"mercadopago ids are numeric, got "+transactionID, "PAYMENT_NOT_FOUND")
	}

	result, err := a.client.Get(ctx, id)
	if err != nil {
		if strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, domain.NewServiceError(domain.ErrNotFound,
				"mercadopago has no payment "+transactionID, "PAYMENT_NOT_FOUND")
		}
		telemetry.Logger.Warn("status lookup degraded to pending",
			zap.String("provider", providerName),
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return &domain.StatusResult{
			TransactionID: transactionID,
			Status:        domain.StatusPending,
			Paid:          false,
			Amount:        decimal.Zero,
			Provider:      providerName,
		}, nil
	}

	status := parseStatus(result.Status)
	return &domain.StatusResult{
		TransactionID: transactionID,
		Status:        status,
		Paid:          status == domain.StatusPaid,
		Amount:        decimal.NewFromFloat(result.TransactionAmount),
		Provider:      providerName,
	}, nil
}
