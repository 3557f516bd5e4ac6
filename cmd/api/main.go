// PIX Gateway Service
//
// This is the main entry point for the charge gateway.
// It wires up the provider chain, cache, notifier and HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brpag/pix-gateway/config"
	"github.com/brpag/pix-gateway/internal/adapters/ironpay"
	"github.com/brpag/pix-gateway/internal/adapters/localpix"
	"github.com/brpag/pix-gateway/internal/adapters/mercadopago"
	"github.com/brpag/pix-gateway/internal/adapters/novaera"
	"github.com/brpag/pix-gateway/internal/adapters/paybets"
	"github.com/brpag/pix-gateway/internal/adapters/zentrapay"
	"github.com/brpag/pix-gateway/internal/api"
	"github.com/brpag/pix-gateway/internal/cache"
	"github.com/brpag/pix-gateway/internal/core/ports"
	"github.com/brpag/pix-gateway/internal/core/service"
	"github.com/brpag/pix-gateway/internal/notify"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

func main() {
	cfg := config.Load()

	if err := telemetry.InitTelemetry("pix-gateway"); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry init failed: %v\n", err)
		os.Exit(1)
	}
	logger := telemetry.Logger

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("Configuration error", zap.Error(err))
	}

	logger.Info("Starting PIX gateway",
		zap.String("port", cfg.Server.Port),
		zap.Strings("chain", cfg.Chain.Order),
	)

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	chargeCache, closeCache := buildCache(cfg)
	defer closeCache()

	providers, verifiers := buildProviders(cfg)
	if len(providers) == 0 {
		logger.Warn("No remote providers configured, every charge will be served by the local fallback")
	}

	fallback := localpix.New(localpix.Config{
		Key:          cfg.Pix.Key,
		MerchantName: cfg.Pix.MerchantName,
		MerchantCity: cfg.Pix.MerchantCity,
	})

	var notifier ports.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret)
	} else {
		logger.Info("NOTIFY_WEBHOOK_URL not set, payment events will not be forwarded")
	}

	// Service Layer
	chargeService := service.NewChargeService(providers, fallback, chargeCache, notifier)

	// API Layer
	handler := api.NewHandler(chargeService, verifiers)
	router := api.SetupRouter(handler, cfg.Server.GinMode, cfg.Security.APIKey)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Forced shutdown", zap.Error(err))
	}
	telemetry.Shutdown(ctx)
	logger.Info("Server stopped")
}

// validateConfig checks that required configuration values are set. The
// local fallback signs every payload with the configured PIX key, so a
// missing key would leave the chain without its terminal provider.
func validateConfig(cfg *config.Config) error {
	if cfg.Pix.Key == "" {
		return fmt.Errorf("PIX_KEY is required")
	}
	if cfg.Pix.MerchantName == "" {
		return fmt.Errorf("PIX_MERCHANT_NAME is required")
	}
	if cfg.Pix.MerchantCity == "" {
		return fmt.Errorf("PIX_MERCHANT_CITY is required")
	}
	if cfg.Security.APIKey == "" {
		telemetry.Logger.Warn("API_KEY not set, charge endpoints are unauthenticated")
	}
	return nil
}

// buildCache selects the idempotency backend. The returned func releases
// whatever the backend holds (janitor goroutine or redis connection).
func buildCache(cfg *config.Config) (ports.ChargeCache, func()) {
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		telemetry.Logger.Info("Using redis idempotency cache", zap.String("addr", cfg.Cache.RedisAddr))
		return cache.NewRedis(client, cfg.Cache.Window), func() { _ = client.Close() }
	}
	mem := cache.NewMemory(cfg.Cache.Window, cfg.Cache.Capacity)
	return mem, mem.Close
}

// buildProviders assembles the failover chain in the configured order,
// skipping entries whose credentials are absent. It also collects webhook
// signature verifiers for providers that sign their callbacks.
func buildProviders(cfg *config.Config) ([]ports.Provider, map[string]api.SignatureVerifier) {
	logger := telemetry.Logger
	providers := make([]ports.Provider, 0, len(cfg.Chain.Order))
	verifiers := make(map[string]api.SignatureVerifier)

	for _, name := range cfg.Chain.Order {
		switch name {
		case "zentrapay":
			if cfg.Providers.ZentraPay.APIKey == "" {
				logger.Warn("Skipping provider, credentials not configured", zap.String("provider", name))
				continue
			}
			providers = append(providers, zentrapay.New(zentrapay.Config{
				BaseURL:         cfg.Providers.ZentraPay.BaseURL,
				APIKey:          cfg.Providers.ZentraPay.APIKey,
				NotificationURL: cfg.CallbackURL("zentrapay"),
				Timeout:         cfg.Chain.ProviderTimeout,
			}))

		case "paybets":
			if cfg.Providers.PayBets.ClientID == "" || cfg.Providers.PayBets.ClientSecret == "" {
				logger.Warn("Skipping provider, credentials not configured", zap.String("provider", name))
				continue
			}
			providers = append(providers, paybets.New(paybets.Config{
				BaseURL:      cfg.Providers.PayBets.BaseURL,
				ClientID:     cfg.Providers.PayBets.ClientID,
				ClientSecret: cfg.Providers.PayBets.ClientSecret,
				CallbackURL:  cfg.CallbackURL("paybets"),
				Timeout:      cfg.Chain.ProviderTimeout,
			}))

		case "novaera":
			if cfg.Providers.NovaEra.SecretKey == "" || cfg.Providers.NovaEra.PublicKey == "" {
				logger.Warn("Skipping provider, credentials not configured", zap.String("provider", name))
				continue
			}
			providers = append(providers, novaera.New(novaera.Config{
				BaseURL:     cfg.Providers.NovaEra.BaseURL,
				SecretKey:   cfg.Providers.NovaEra.SecretKey,
				PublicKey:   cfg.Providers.NovaEra.PublicKey,
				PostbackURL: cfg.CallbackURL("novaera"),
				Timeout:     cfg.Chain.ProviderTimeout,
			}))

		case "ironpay":
			if cfg.Providers.IronPay.APIToken == "" {
				logger.Warn("Skipping provider, credentials not configured", zap.String("provider", name))
				continue
			}
			providers = append(providers, ironpay.New(ironpay.Config{
				BaseURL:     cfg.Providers.IronPay.BaseURL,
				APIToken:    cfg.Providers.IronPay.APIToken,
				PostbackURL: cfg.CallbackURL("ironpay"),
				Timeout:     cfg.Chain.ProviderTimeout,
			}))

		case "mercadopago":
			if cfg.Providers.MercadoPago.AccessToken == "" {
				logger.Warn("Skipping provider, credentials not configured", zap.String("provider", name))
				continue
			}
			adapter, err := mercadopago.New(mercadopago.Config{
				AccessToken:     cfg.Providers.MercadoPago.AccessToken,
				NotificationURL: cfg.CallbackURL("mercadopago"),
				WebhookSecret:   cfg.Providers.MercadoPago.WebhookSecret,
			})
			if err != nil {
				logger.Warn("Skipping provider, SDK setup failed", zap.String("provider", name), zap.Error(err))
				continue
			}
			providers = append(providers, adapter)
			if cfg.Providers.MercadoPago.WebhookSecret != "" {
				validator := mercadopago.NewWebhookValidator(cfg.Providers.MercadoPago.WebhookSecret)
				verifiers["mercadopago"] = validator.Verify
			}

		default:
			logger.Warn("Unknown provider in PROVIDER_CHAIN, ignoring", zap.String("provider", name))
		}
	}

	return providers, verifiers
}
