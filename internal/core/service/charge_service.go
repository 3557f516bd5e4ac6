// Package service implements the core charge orchestration.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/core/ports"
	"github.com/brpag/pix-gateway/internal/pix"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

const notifyTimeout = 15 * time.Second

// ChargeService runs charge creation through the provider chain. The
// chain is tried in order, the local fallback closes it, and repeat
// requests for the same CPF inside the cache window get the original
// charge back instead of a new one.
type ChargeService struct {
	providers []ports.Provider
	fallback  ports.Provider
	cache     ports.ChargeCache
	notifier  ports.Notifier

	inflight singleflight.Group
}

// NewChargeService wires the service. The fallback must be a provider
// that cannot fail for reasons other than bad merchant configuration.
func NewChargeService(providers []ports.Provider, fallback ports.Provider, cache ports.ChargeCache, notifier ports.Notifier) *ChargeService {
	return &ChargeService{
		providers: providers,
		fallback:  fallback,
		cache:     cache,
		notifier:  notifier,
	}
}

type flightResult struct {
	charge    *domain.Charge
	fromCache bool
}

// CreateCharge validates the request and returns a charge for it. The
// returned flag reports whether the charge came from the idempotency
// cache rather than a fresh provider call. Concurrent requests for the
// same CPF collapse into a single provider invocation.
func (s *ChargeService) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	// Validate normalized the CPF, so it is usable as the dedup key.
	key := req.CPF

	if charge, ok := s.cache.Lookup(ctx, key); ok {
		cacheHits.Inc()
		return charge, true, nil
	}

	// The closure below runs for exactly one of the callers sharing the
	// key; the others wait and reuse its result. Only the caller whose
	// closure ran reports a fresh charge.
	var executed bool
	result, err, _ := s.inflight.Do(key, func() (any, error) {
		executed = true

		// A charge stored between the miss above and this flight
		// winning the key still counts as a cache hit.
		if charge, ok := s.cache.Lookup(ctx, key); ok {
			return &flightResult{charge: charge, fromCache: true}, nil
		}

		charge, err := s.runChain(ctx, req)
		if err != nil {
			return nil, err
		}

		s.cache.Store(ctx, key, charge)
		s.notifyAsync(domain.NotificationEvent{
			Event:         "charge.created",
			TransactionID: charge.TransactionID,
			Provider:      charge.Provider,
			Status:        string(charge.Status),
			Amount:        charge.Amount,
			Timestamp:     time.Now().Format(time.RFC3339),
		})
		return &flightResult{charge: charge}, nil
	})
	if err != nil {
		return nil, false, err
	}

	fr := result.(*flightResult)
	cached := !executed || fr.fromCache
	if cached {
		cacheHits.Inc()
	}
	return fr.charge, cached, nil
}

// runChain tries each provider in order and finishes on the local
// fallback. Individual failures are logged and counted, never
// propagated, because the next provider may still serve the charge.
func (s *ChargeService) runChain(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	for _, p := range s.providers {
		charge, err := p.CreateCharge(ctx, req)
		if err != nil {
			providerFailures.WithLabelValues(p.Name()).Inc()
			telemetry.Logger.Warn("provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err))
			continue
		}
		chargesCreated.WithLabelValues(p.Name()).Inc()
		return s.finishCharge(charge), nil
	}

	charge, err := s.fallback.CreateCharge(ctx, req)
	if err != nil {
		chargesFailed.Inc()
		telemetry.Logger.Error("local fallback failed",
			zap.String("provider", s.fallback.Name()),
			zap.Error(err))
		return nil, domain.NewServiceError(domain.ErrAllProvidersFailed,
			"no provider could create the charge", "CHARGE_FAILED")
	}
	chargesCreated.WithLabelValues(s.fallback.Name()).Inc()
	return s.finishCharge(charge), nil
}

// finishCharge fills the QR image for providers that only return the
// copy-and-paste payload.
func (s *ChargeService) finishCharge(charge *domain.Charge) *domain.Charge {
	if charge.QRCode == "" && charge.PixCode != "" {
		img, err := pix.RenderQR(charge.PixCode)
		if err != nil {
			telemetry.Logger.Warn("qr image rendering failed",
				zap.String("transaction_id", charge.TransactionID),
				zap.Error(err))
		} else {
			charge.QRCode = img
		}
	}
	return charge
}

// CheckStatus looks a transaction up. With a provider name the lookup
// goes straight to that provider; without one the chain is walked until
// some provider recognizes the id. A provider that cannot answer yields
// a pending result rather than an error, so polling survives outages.
func (s *ChargeService) CheckStatus(ctx context.Context, transactionID, providerName string) (*domain.StatusResult, error) {
	if transactionID == "" {
		return nil, domain.NewServiceError(domain.ErrValidation,
			"transaction id is required", "INVALID_TRANSACTION_ID")
	}

	if providerName != "" {
		p := s.providerByName(providerName)
		if p == nil {
			return nil, domain.NewServiceError(domain.ErrNotFound,
				"unknown provider: "+providerName, "PROVIDER_NOT_FOUND")
		}
		return p.CheckStatus(ctx, transactionID)
	}

	for _, p := range s.chain() {
		result, err := p.CheckStatus(ctx, transactionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			telemetry.Logger.Warn("status lookup degraded to pending",
				zap.String("provider", p.Name()),
				zap.String("transaction_id", transactionID),
				zap.Error(err))
			return &domain.StatusResult{
				TransactionID: transactionID,
				Status:        domain.StatusPending,
				Paid:          false,
				Provider:      p.Name(),
			}, nil
		}
		return result, nil
	}

	return nil, domain.NewServiceError(domain.ErrNotFound,
		"no provider recognizes transaction "+transactionID, "PAYMENT_NOT_FOUND")
}

// ProcessWebhook ingests a provider callback. Providers disagree on
// payload shape, so extraction is permissive; when the payload names no
// status, the provider is asked directly before the event goes out.
func (s *ChargeService) ProcessWebhook(ctx context.Context, providerName string, payload map[string]any) error {
	transactionID, rawStatus := extractWebhookFields(payload)
	if transactionID == "" {
		return domain.NewServiceError(domain.ErrValidation,
			"webhook payload carries no transaction id", "INVALID_WEBHOOK")
	}

	status := domain.ParseStatus(rawStatus)
	if rawStatus == "" && providerName != "" {
		if p := s.providerByName(providerName); p != nil {
			if result, err := p.CheckStatus(ctx, transactionID); err == nil {
				status = result.Status
			}
		}
	}

	telemetry.Logger.Info("webhook received",
		zap.String("provider", providerName),
		zap.String("transaction_id", transactionID),
		zap.String("status", string(status)))

	if s.notifier == nil {
		return nil
	}
	event := domain.NotificationEvent{
		Event:         eventForStatus(status),
		TransactionID: transactionID,
		Provider:      providerName,
		Status:        string(status),
		Timestamp:     time.Now().Format(time.RFC3339),
	}
	if err := s.notifier.NotifyPaymentEvent(ctx, event); err != nil {
		notifyFailures.Inc()
		telemetry.Logger.Warn("webhook event delivery failed",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return domain.NewServiceError(domain.ErrNotifyFailed,
			"failed to forward webhook event", "NOTIFY_FAILED")
	}
	return nil
}

func (s *ChargeService) chain() []ports.Provider {
	chain := make([]ports.Provider, 0, len(s.providers)+1)
	chain = append(chain, s.providers...)
	return append(chain, s.fallback)
}

func (s *ChargeService) providerByName(name string) ports.Provider {
	for _, p := range s.chain() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (s *ChargeService) notifyAsync(event domain.NotificationEvent) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyPaymentEvent(ctx, event); err != nil {
			notifyFailures.Inc()
			telemetry.Logger.Warn("charge notification failed",
				zap.String("transaction_id", event.TransactionID),
				zap.Error(err))
		}
	}()
}

// extractWebhookFields digs the transaction id and status out of a
// callback body, looking at the top level and one "data" level down.
func extractWebhookFields(payload map[string]any) (transactionID, status string) {
	levels := []map[string]any{payload}
	if data, ok := payload["data"].(map[string]any); ok {
		levels = append(levels, data)
	}
	for _, m := range levels {
		for _, key := range []string{"transaction_id", "transactionId", "id", "hash"} {
			if transactionID != "" {
				break
			}
			if v, ok := stringValue(m[key]); ok {
				transactionID = v
			}
		}
		if status == "" {
			if v, ok := stringValue(m["status"]); ok {
				status = v
			}
		}
	}
	return transactionID, status
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t, true
		}
	case float64:
		// Numeric ids decode as float64 from JSON.
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// eventForStatus maps a charge status to the event name notified
// downstream.
func eventForStatus(status domain.Status) string {
	switch status {
	case domain.StatusPaid:
		return "payment.paid"
	case domain.StatusPending:
		return "payment.pending"
	case domain.StatusFailed:
		return "payment.failed"
	case domain.StatusExpired:
		return "payment.expired"
	case domain.StatusCancelled:
		return "payment.cancelled"
	default:
		return "payment.updated"
	}
}
