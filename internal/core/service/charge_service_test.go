package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brpag/pix-gateway/internal/adapters/localpix"
	"github.com/brpag/pix-gateway/internal/cache"
	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/core/ports"
	"github.com/brpag/pix-gateway/internal/pix"
)

type fakeProvider struct {
	name     string
	createFn func(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error)
	statusFn func(ctx context.Context, transactionID string) (*domain.StatusResult, error)
	creates  int32
	statuses int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	atomic.AddInt32(&f.creates, 1)
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return &domain.Charge{
		TransactionID: f.name + "-tx",
		PixCode:       "00020101",
		QRCode:        "data:image/png;base64,stub",
		Status:        domain.StatusPending,
		Amount:        req.Amount,
		Provider:      f.name,
		CreatedAt:     time.Now(),
	}, nil
}

func (f *fakeProvider) CheckStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	atomic.AddInt32(&f.statuses, 1)
	if f.statusFn != nil {
		return f.statusFn(ctx, transactionID)
	}
	return nil, domain.NewServiceError(domain.ErrNotFound,
		f.name+" has no record of "+transactionID, "PAYMENT_NOT_FOUND")
}

func failingProvider(name string) *fakeProvider {
	return &fakeProvider{
		name: name,
		createFn: func(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
			return nil, domain.NewServiceError(domain.ErrNetwork, name+" is down", "NETWORK_ERROR")
		},
	}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	ch     chan domain.NotificationEvent
}

func (f *fakeNotifier) NotifyPaymentEvent(ctx context.Context, event domain.NotificationEvent) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	if f.ch != nil {
		f.ch <- event
	}
	return nil
}

func mariaRequest() domain.ChargeRequest {
	return domain.ChargeRequest{
		Name:   "Maria Souza",
		Email:  "maria@example.com",
		CPF:    "111.444.777-35",
		Amount: decimal.NewFromFloat(118.35),
	}
}

func newTestService(t *testing.T, providers []ports.Provider, fallback ports.Provider, notifier ports.Notifier) *ChargeService {
	t.Helper()
	c := cache.NewMemory(time.Hour, 100)
	t.Cleanup(c.Close)
	return NewChargeService(providers, fallback, c, notifier)
}

func TestCreateChargeUsesFirstHealthyProvider(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	p2 := &fakeProvider{name: "p2"}
	svc := newTestService(t, []ports.Provider{p1, p2}, &fakeProvider{name: "local"}, nil)

	charge, cached, err := svc.CreateCharge(context.Background(), mariaRequest())
	require.NoError(t, err)

	assert.False(t, cached)
	assert.Equal(t, "p1", charge.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p1.creates))
	assert.Equal(t, int32(0), atomic.LoadInt32(&p2.creates), "second provider must not be tried")
}

func TestCreateChargeFailsOverOnProviderError(t *testing.T) {
	p1 := failingProvider("p1")
	p2 := &fakeProvider{name: "p2"}
	svc := newTestService(t, []ports.Provider{p1, p2}, &fakeProvider{name: "local"}, nil)

	charge, _, err := svc.CreateCharge(context.Background(), mariaRequest())
	require.NoError(t, err)

	assert.Equal(t, "p2", charge.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p1.creates))
	assert.Equal(t, int32(1), atomic.LoadInt32(&p2.creates))
}

func TestCreateChargeAllRemotesFailFallsBackLocally(t *testing.T) {
	remotes := []ports.Provider{
		failingProvider("zentrapay"),
		failingProvider("paybets"),
		failingProvider("novaera"),
	}
	fallback := localpix.New(localpix.Config{
		Key:          "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		MerchantName: "LOJA EXEMPLO LTDA",
		MerchantCity: "SAO PAULO",
	})
	svc := newTestService(t, remotes, fallback, nil)

	charge, cached, err := svc.CreateCharge(context.Background(), mariaRequest())
	require.NoError(t, err)

	assert.False(t, cached)
	assert.Equal(t, "local-fallback", charge.Provider)
	assert.Equal(t, domain.StatusPending, charge.Status)
	assert.True(t, strings.HasPrefix(charge.PixCode, "00020101"))
	assert.GreaterOrEqual(t, len(charge.PixCode), pix.MinPayloadLen)
	assert.LessOrEqual(t, len(charge.PixCode), pix.MaxPayloadLen)
	require.NoError(t, pix.Validate(charge.PixCode))

	for _, p := range remotes {
		assert.Equal(t, int32(1), atomic.LoadInt32(&p.(*fakeProvider).creates))
	}
}

func TestCreateChargeRejectsBadCPFBeforeProviders(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	svc := newTestService(t, []ports.Provider{p1}, &fakeProvider{name: "local"}, nil)

	req := mariaRequest()
	req.CPF = "123"
	_, _, err := svc.CreateCharge(context.Background(), req)

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int32(0), atomic.LoadInt32(&p1.creates), "no provider may be called for invalid input")
}

func TestCreateChargeRepeatWithinWindowHitsCache(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	svc := newTestService(t, []ports.Provider{p1}, &fakeProvider{name: "local"}, nil)

	first, cached, err := svc.CreateCharge(context.Background(), mariaRequest())
	require.NoError(t, err)
	require.False(t, cached)

	// Same person retries with the CPF formatted differently.
	req := mariaRequest()
	req.CPF = "11144477735"
	second, cached, err := svc.CreateCharge(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, cached)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p1.creates), "cached repeat must not invoke providers")
}

func TestCreateChargeCollapsesConcurrentRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	p1 := &fakeProvider{name: "p1"}
	p1.createFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
		once.Do(func() { close(entered) })
		<-release
		return &domain.Charge{
			TransactionID: "tx-collapsed",
			PixCode:       "00020101",
			QRCode:        "data:image/png;base64,stub",
			Status:        domain.StatusPending,
			Amount:        req.Amount,
			Provider:      "p1",
		}, nil
	}
	svc := newTestService(t, []ports.Provider{p1}, &fakeProvider{name: "local"}, nil)

	const callers = 5
	ids := make([]string, callers)
	cachedFlags := make([]bool, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			charge, cached, err := svc.CreateCharge(context.Background(), mariaRequest())
			errs[i] = err
			if err == nil {
				ids[i] = charge.TransactionID
				cachedFlags[i] = cached
			}
		}(i)
	}

	<-entered
	// Give the remaining callers time to join the flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&p1.creates), "all callers must share one provider call")
	fresh := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tx-collapsed", ids[i])
		if !cachedFlags[i] {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "exactly one caller gets the fresh charge")
}

func TestCreateChargeRendersQRImage(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	p1.createFn = func(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
		return &domain.Charge{
			TransactionID: "tx-noqr",
			PixCode:       "00020101021126580014br.gov.bcb.pix",
			Status:        domain.StatusPending,
			Amount:        req.Amount,
			Provider:      "p1",
		}, nil
	}
	svc := newTestService(t, []ports.Provider{p1}, &fakeProvider{name: "local"}, nil)

	charge, _, err := svc.CreateCharge(context.Background(), mariaRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(charge.QRCode, "data:image/png;base64,"),
		"missing qr image should be rendered from the payload")
}

func TestCreateChargeEmitsCreatedEvent(t *testing.T) {
	notifier := &fakeNotifier{ch: make(chan domain.NotificationEvent, 1)}
	p1 := &fakeProvider{name: "p1"}
	svc := newTestService(t, []ports.Provider{p1}, &fakeProvider{name: "local"}, notifier)

	_, _, err := svc.CreateCharge(context.Background(), mariaRequest())
	require.NoError(t, err)

	select {
	case event := <-notifier.ch:
		assert.Equal(t, "charge.created", event.Event)
		assert.Equal(t, "p1-tx", event.TransactionID)
		assert.Equal(t, "p1", event.Provider)
		assert.Equal(t, string(domain.StatusPending), event.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("charge.created event never arrived")
	}
}

func TestCheckStatusWalksChainPastUnknowns(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	p2 := &fakeProvider{name: "p2"}
	p2.statusFn = func(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
		return &domain.StatusResult{
			TransactionID: transactionID,
			Status:        domain.StatusPaid,
			Paid:          true,
			Provider:      "p2",
		}, nil
	}
	svc := newTestService(t, []ports.Provider{p1, p2}, &fakeProvider{name: "local"}, nil)

	result, err := svc.CheckStatus(context.Background(), "tx-42", "")
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Provider)
	assert.True(t, result.Paid)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p1.statuses))
}

func TestCheckStatusNamedProviderGoesDirect(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	p2 := &fakeProvider{name: "p2"}
	p2.statusFn = func(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
		return &domain.StatusResult{TransactionID: transactionID, Status: domain.StatusPending, Provider: "p2"}, nil
	}
	svc := newTestService(t, []ports.Provider{p1, p2}, &fakeProvider{name: "local"}, nil)

	result, err := svc.CheckStatus(context.Background(), "tx-42", "p2")
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Provider)
	assert.Equal(t, int32(0), atomic.LoadInt32(&p1.statuses), "named lookup must skip the chain")

	_, err = svc.CheckStatus(context.Background(), "tx-42", "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckStatusDegradesToPendingWhenProviderCannotAnswer(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	p1.statusFn = func(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
		return nil, domain.NewServiceError(domain.ErrNetwork, "p1 is down", "NETWORK_ERROR")
	}
	svc := newTestService(t, []ports.Provider{p1}, &fakeProvider{name: "local"}, nil)

	result, err := svc.CheckStatus(context.Background(), "tx-42", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, result.Status)
	assert.False(t, result.Paid)
	assert.Equal(t, "p1", result.Provider)
}

func TestCheckStatusNothingRecognizesID(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	svc := newTestService(t, []ports.Provider{p1}, &fakeProvider{name: "local"}, nil)

	_, err := svc.CheckStatus(context.Background(), "tx-unknown", "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessWebhookForwardsMappedEvent(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(t, nil, &fakeProvider{name: "local"}, notifier)

	err := svc.ProcessWebhook(context.Background(), "zentrapay", map[string]any{
		"transaction_id": "zp_abc123",
		"status":         "paid",
	})
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "payment.paid", notifier.events[0].Event)
	assert.Equal(t, "zp_abc123", notifier.events[0].TransactionID)
	assert.Equal(t, "zentrapay", notifier.events[0].Provider)
}

func TestProcessWebhookLooksUpMissingStatus(t *testing.T) {
	notifier := &fakeNotifier{}
	mp := &fakeProvider{name: "mercadopago"}
	mp.statusFn = func(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
		return &domain.StatusResult{
			TransactionID: transactionID,
			Status:        domain.StatusPaid,
			Paid:          true,
			Provider:      "mercadopago",
		}, nil
	}
	svc := newTestService(t, []ports.Provider{mp}, &fakeProvider{name: "local"}, notifier)

	// Mercado Pago style notification: a numeric id, no status field.
	err := svc.ProcessWebhook(context.Background(), "mercadopago", map[string]any{
		"type": "payment",
		"data": map[string]any{"id": float64(12345)},
	})
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "payment.paid", notifier.events[0].Event)
	assert.Equal(t, "12345", notifier.events[0].TransactionID)
}

func TestProcessWebhookRejectsPayloadWithoutID(t *testing.T) {
	svc := newTestService(t, nil, &fakeProvider{name: "local"}, &fakeNotifier{})

	err := svc.ProcessWebhook(context.Background(), "zentrapay", map[string]any{"event": "ping"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
