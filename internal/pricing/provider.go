package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

// Provider returns the reference unit price (INR per gram) for an asset.
type Provider interface {
	Quote(ctx context.Context, asset models.AssetType) (float64, error)
}

type quoteRequest struct {
	AssetType string `json:"asset_type"`
}

type quoteResponse struct {
	AssetType string  `json:"asset_type"`
	UnitPrice float64 `json:"unit_price"`
}

// NATSProvider asks the price service over request/reply.
type NATSProvider struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func NewNATSProvider(nc *nats.Conn, cfg config.PricingConfig) *NATSProvider {
	return &NATSProvider{nc: nc, subject: cfg.QuoteSubject, timeout: cfg.QuoteTimeout}
}

func (p *NATSProvider) Quote(ctx context.Context, asset models.AssetType) (float64, error) {
	req, _ := json.Marshal(quoteRequest{AssetType: string(asset)})

	msg, err := p.nc.RequestWithContext(ctx, p.subject, req)
	if err != nil {
		return 0, fmt.Errorf("price service request: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return 0, fmt.Errorf("decode price quote: %w", err)
	}
	if resp.UnitPrice <= 0 {
		return 0, fmt.Errorf("price service returned non-positive price %f", resp.UnitPrice)
	}
	return resp.UnitPrice, nil
}

// CacheProvider reads recently observed prices from redis.
type CacheProvider struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheProvider(client *redis.Client, cfg config.PricingConfig) *CacheProvider {
	return &CacheProvider{client: client, ttl: cfg.CacheTTL}
}

func cacheKey(asset models.AssetType) string {
	return "metal_price:" + string(asset)
}

func (p *CacheProvider) Quote(ctx context.Context, asset models.AssetType) (float64, error) {
	val, err := p.client.Get(ctx, cacheKey(asset)).Result()
	if err != nil {
		return 0, fmt.Errorf("price cache read: %w", err)
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("price cache holds invalid value %q", val)
	}
	return price, nil
}

// Put stores a freshly observed price. Failures are non-fatal for callers.
func (p *CacheProvider) Put(ctx context.Context, asset models.AssetType, price float64) error {
	return p.client.Set(ctx, cacheKey(asset), strconv.FormatFloat(price, 'f', -1, 64), p.ttl).Err()
}

// StaticProvider is the terminal fallback: fixed per-asset prices from
// configuration.
type StaticProvider struct {
	prices map[models.AssetType]float64
}

func NewStaticProvider(cfg config.PricingConfig) *StaticProvider {
	return &StaticProvider{prices: map[models.AssetType]float64{
		models.AssetGold:   cfg.FallbackGoldPrice,
		models.AssetSilver: cfg.FallbackSilverPrice,
	}}
}

func (p *StaticProvider) Quote(_ context.Context, asset models.AssetType) (float64, error) {
	price, ok := p.prices[asset]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no fallback price for asset %s", asset)
	}
	return price, nil
}

// Chain tries its providers in order and returns the first successful quote.
// When the winning quote came from an earlier provider than the cache, it is
// written through so a later outage still has a recent price to fall back on.
type Chain struct {
	providers []Provider
	cache     *CacheProvider
}

func NewChain(cache *CacheProvider, providers ...Provider) *Chain {
	return &Chain{providers: providers, cache: cache}
}

func (c *Chain) Quote(ctx context.Context, asset models.AssetType) (float64, error) {
	var errs []error
	for i, p := range c.providers {
		price, err := p.Quote(ctx, asset)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i > 0 {
			telemetry.Logger.Warn("Price resolved from fallback provider",
				zap.String("asset_type", string(asset)),
				zap.Int("provider_index", i),
			)
		}
		if c.cache != nil && i == 0 {
			if err := c.cache.Put(ctx, asset, price); err != nil {
				telemetry.Logger.Warn("Price cache write failed", zap.Error(err))
			}
		}
		return price, nil
	}
	return 0, fmt.Errorf("all price providers failed: %w", errors.Join(errs...))
}
