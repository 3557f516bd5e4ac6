// Package ports defines the interfaces (ports) for the charge gateway.
// These are contracts that adapters must implement.
package ports

import (
	"context"

	"github.com/brpag/pix-gateway/internal/core/domain"
)

// Provider issues PIX charges against one payment provider.
type Provider interface {
	// Name identifies the provider in results, logs and metrics.
	Name() string

	// CreateCharge issues a new PIX charge. It fails with ErrValidation,
	// ErrAuth, ErrProvider, ErrNetwork or ErrEncoding; the orchestrator
	// decides whether to fail over.
	CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error)

	// CheckStatus polls one transaction. It fails with ErrNotFound when
	// the provider does not know the id, which tells the orchestrator to
	// ask the next provider in the chain. Any other failure degrades to
	// a best-effort pending result instead of an error, so a polling
	// loop never breaks on a provider outage.
	CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error)
}

// ChargeCache deduplicates charges per customer inside a time window.
// Cache failures are soft: a broken cache degrades to a miss, never to a
// failed charge.
type ChargeCache interface {
	// Lookup returns the cached charge for a normalized CPF, or false
	// when there is none or the entry has aged past the window.
	Lookup(ctx context.Context, cpf string) (*domain.Charge, bool)

	// Store records the charge for a CPF, overwriting unconditionally.
	Store(ctx context.Context, cpf string, charge *domain.Charge)

	// SweepExpired removes entries past the window and reports how many.
	SweepExpired(ctx context.Context) int
}

// Notifier delivers charge lifecycle events to an external callback.
type Notifier interface {
	NotifyPaymentEvent(ctx context.Context, event domain.NotificationEvent) error
}
