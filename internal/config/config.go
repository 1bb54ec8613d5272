package config

import (
	"os"
	"strconv"
	"time"
)

type GatewayConfig struct {
	BaseURL       string
	AppID         string
	SecretKey     string
	WebhookSecret string
	APIVersion    string
	Timeout       time.Duration
}

type UPIConfig struct {
	PayeeVPA     string
	PayeeName    string
	MerchantCode string
}

type ReconcilerConfig struct {
	MaxPollAttempts int
	PollInterval    time.Duration
	DedupTTL        time.Duration
}

type PricingConfig struct {
	QuoteSubject string
	QuoteTimeout time.Duration
	CacheTTL     time.Duration
	// Static per-asset fallback prices (INR per gram), used when both the
	// price service and the cache are unavailable.
	FallbackGoldPrice   float64
	FallbackSilverPrice float64
}

type Config struct {
	DatabaseURL  string
	RedisURL     string
	NatsURL      string
	KafkaBrokers string
	Port         string

	Gateway    GatewayConfig
	UPI        UPIConfig
	Reconciler ReconcilerConfig
	Pricing    PricingConfig
}

func Load() *Config {
	return &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		NatsURL:      os.Getenv("NATS_URL"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		Port:         envOr("PORT", "8082"),
		Gateway: GatewayConfig{
			BaseURL:       envOr("GATEWAY_BASE_URL", "https://sandbox.cashfree.com/pg"),
			AppID:         os.Getenv("GATEWAY_APP_ID"),
			SecretKey:     os.Getenv("GATEWAY_SECRET_KEY"),
			WebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
			APIVersion:    envOr("GATEWAY_API_VERSION", "2022-09-01"),
			Timeout:       envDurationOr("GATEWAY_TIMEOUT", 12*time.Second),
		},
		UPI: UPIConfig{
			PayeeVPA:     os.Getenv("UPI_PAYEE_VPA"),
			PayeeName:    envOr("UPI_PAYEE_NAME", "Aurumly"),
			MerchantCode: os.Getenv("UPI_MERCHANT_CODE"),
		},
		Reconciler: ReconcilerConfig{
			MaxPollAttempts: envIntOr("RECONCILER_MAX_ATTEMPTS", 10),
			PollInterval:    envDurationOr("RECONCILER_POLL_INTERVAL", 2500*time.Millisecond),
			DedupTTL:        envDurationOr("RECONCILER_DEDUP_TTL", 24*time.Hour),
		},
		Pricing: PricingConfig{
			QuoteSubject:        envOr("PRICING_QUOTE_SUBJECT", "pricing.quote"),
			QuoteTimeout:        envDurationOr("PRICING_QUOTE_TIMEOUT", 5*time.Second),
			CacheTTL:            envDurationOr("PRICING_CACHE_TTL", time.Minute),
			FallbackGoldPrice:   envFloatOr("PRICING_FALLBACK_GOLD", 7250.0),
			FallbackSilverPrice: envFloatOr("PRICING_FALLBACK_SILVER", 92.5),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
