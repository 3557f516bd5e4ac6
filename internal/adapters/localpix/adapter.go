// Package localpix is the terminal fallback of the provider chain. It
// issues a BR Code for the merchant's own PIX key instead of calling
// anyone, so the chain always has a provider that cannot be down.
package localpix

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/pix"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

const (
	providerName = "local-fallback"
	idPrefix     = "LOCAL-"
)

// Config carries the merchant identity stamped into generated codes.
type Config struct {
	Key          string
	MerchantName string
	MerchantCity string
}

// Adapter generates static-key PIX charges locally.
type Adapter struct {
	cfg Config
}

// New builds the local fallback adapter.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Name returns the provider identifier used in logs and responses.
func (a *Adapter) Name() string {
	return providerName
}

func newTransactionID(now time.Time) string {
	return idPrefix + now.Format("20060102150405") + "-" + uuid.NewString()[:8]
}

// CreateCharge encodes a charge against the merchant's own key. Payment
// confirmation for these runs out of band, so the charge stays pending.
func (a *Adapter) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	now := time.Now()
	transactionID := newTransactionID(now)

	// The reference field caps at 25 characters, which the id without
	// its prefix fits exactly.
	payload, err := pix.Encode(pix.Options{
		Key:          a.cfg.Key,
		MerchantName: a.cfg.MerchantName,
		MerchantCity: a.cfg.MerchantCity,
		Amount:       req.Amount,
		Reference:    strings.TrimPrefix(transactionID, idPrefix),
	})
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrEncoding,
			"failed to encode pix payload: "+err.Error(), "ENCODING_ERROR")
	}

	qrImage, err := pix.RenderQR(payload)
	if err != nil {
		// The copy-and-paste payload alone is a usable charge.
		telemetry.Logger.Warn("qr image rendering failed",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		qrImage = ""
	}

	expiresAt := now.Add(time.Hour)
	return &domain.Charge{
		TransactionID: transactionID,
		PixCode:       payload,
		QRCode:        qrImage,
		Status:        domain.StatusPending,
		Amount:        req.Amount,
		Provider:      providerName,
		ExpiresAt:     &expiresAt,
		CreatedAt:     now,
	}, nil
}

// CheckStatus answers for locally issued ids only. There is no ledger
// behind a static-key code, so the best known state is pending.
func (a *Adapter) CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	if !strings.HasPrefix(transactionID, idPrefix) {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			"not a locally issued transaction: "+transactionID, "PAYMENT_NOT_FOUND")
	}
	return &domain.StatusResult{
		TransactionID: transactionID,
		Status:        domain.StatusPending,
		Paid:          false,
		Amount:        decimal.Zero,
		Provider:      providerName,
	}, nil
}
