// Package config handles loading and managing application configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultChain is the provider order used when PROVIDER_CHAIN is not
// set. The local fallback always closes the chain and is not listed.
var DefaultChain = []string{"zentrapay", "paybets", "novaera", "ironpay", "mercadopago"}

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Security settings
	Security SecurityConfig

	// Provider chain configuration
	Chain ChainConfig

	// Idempotency cache configuration
	Cache CacheConfig

	// Merchant identity for locally generated codes
	Pix PixConfig

	// Outbound event notifications
	Notify NotifyConfig

	// Upstream provider credentials
	Providers ProvidersConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string
	GinMode       string // "debug", "release", or "test"
	PublicBaseURL string // externally reachable base for provider callbacks
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	APIKey string // empty leaves the charge API open
}

// ChainConfig holds the failover chain configuration.
type ChainConfig struct {
	Order           []string
	ProviderTimeout time.Duration
}

// CacheConfig holds the idempotency cache configuration.
type CacheConfig struct {
	Backend       string // "memory" or "redis"
	Window        time.Duration
	Capacity      int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// PixConfig holds the merchant identity stamped into fallback codes.
type PixConfig struct {
	Key          string
	MerchantName string
	MerchantCity string
}

// NotifyConfig holds the merchant callback endpoint.
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
}

// ZentraPayConfig holds ZentraPay credentials.
type ZentraPayConfig struct {
	BaseURL string
	APIKey  string
}

// PayBetsConfig holds PayBets credentials.
type PayBetsConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// NovaEraConfig holds Nova Era credentials.
type NovaEraConfig struct {
	BaseURL   string
	SecretKey string
	PublicKey string
}

// IronPayConfig holds Iron Pay credentials.
type IronPayConfig struct {
	BaseURL  string
	APIToken string
}

// MercadoPagoConfig holds Mercado Pago credentials.
type MercadoPagoConfig struct {
	AccessToken   string
	WebhookSecret string
}

// ProvidersConfig groups all upstream provider credentials.
type ProvidersConfig struct {
	ZentraPay   ZentraPayConfig
	PayBets     PayBetsConfig
	NovaEra     NovaEraConfig
	IronPay     IronPayConfig
	MercadoPago MercadoPagoConfig
}

// Load reads configuration from environment variables.
// Returns a Config struct with all settings populated.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			GinMode:       getEnv("GIN_MODE", "debug"),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		},
		Security: SecurityConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Chain: ChainConfig{
			Order:           splitList(getEnv("PROVIDER_CHAIN", strings.Join(DefaultChain, ","))),
			ProviderTimeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			Window:        time.Duration(getEnvInt("CACHE_WINDOW_MINUTES", 60)) * time.Minute,
			Capacity:      getEnvInt("CACHE_CAPACITY", 10000),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Pix: PixConfig{
			Key:          getEnv("PIX_KEY", ""),
			MerchantName: getEnv("PIX_MERCHANT_NAME", ""),
			MerchantCity: getEnv("PIX_MERCHANT_CITY", ""),
		},
		Notify: NotifyConfig{
			WebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("NOTIFY_WEBHOOK_SECRET", ""),
		},
		Providers: ProvidersConfig{
			ZentraPay: ZentraPayConfig{
				BaseURL: getEnv("ZENTRAPAY_API_URL", "https://api.zentrapaybr.com"),
				APIKey:  getEnv("ZENTRAPAY_API_KEY", ""),
			},
			PayBets: PayBetsConfig{
				BaseURL:      getEnv("PAYBETS_API_URL", "https://api.paybets.app"),
				ClientID:     getEnv("PAYBETS_CLIENT_ID", ""),
				ClientSecret: getEnv("PAYBETS_CLIENT_SECRET", ""),
			},
			NovaEra: NovaEraConfig{
				BaseURL:   getEnv("NOVAERA_API_URL", "https://api.novaera-pagamentos.com/api/v1"),
				SecretKey: getEnv("NOVAERA_SECRET_KEY", ""),
				PublicKey: getEnv("NOVAERA_PUBLIC_KEY", ""),
			},
			IronPay: IronPayConfig{
				BaseURL:  getEnv("IRONPAY_API_URL", "https://ironpayapp.com.br"),
				APIToken: getEnv("IRONPAY_API_TOKEN", ""),
			},
			MercadoPago: MercadoPagoConfig{
				AccessToken:   getEnv("MP_ACCESS_TOKEN", ""),
				WebhookSecret: getEnv("MP_WEBHOOK_SECRET", ""),
			},
		},
	}
}

// CallbackURL builds the externally reachable webhook URL for one
// provider, or empty when no public base is configured.
func (c *Config) CallbackURL(provider string) string {
	if c.Server.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.Server.PublicBaseURL, "/") + "/webhooks/" + provider
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean with a fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
