package pricing

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

func init() {
	telemetry.Logger = zap.NewNop()
}

type fixedProvider struct {
	price float64
	err   error
	calls int
}

func (p *fixedProvider) Quote(_ context.Context, _ models.AssetType) (float64, error) {
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return p.price, nil
}

func TestChainUsesFirstProvider(t *testing.T) {
	primary := &fixedProvider{price: 7300}
	fallback := &fixedProvider{price: 7000}
	chain := NewChain(nil, primary, fallback)

	price, err := chain.Quote(context.Background(), models.AssetGold)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if price != 7300 {
		t.Fatalf("price = %f, want 7300", price)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback consulted while primary healthy")
	}
}

func TestChainFallsThroughInOrder(t *testing.T) {
	primary := &fixedProvider{err: errors.New("price service down")}
	secondary := &fixedProvider{err: errors.New("cache empty")}
	static := &fixedProvider{price: 7250}
	chain := NewChain(nil, primary, secondary, static)

	price, err := chain.Quote(context.Background(), models.AssetGold)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if price != 7250 {
		t.Fatalf("price = %f, want static fallback 7250", price)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatal("providers must be tried in order exactly once")
	}
}

func TestChainReportsAllFailures(t *testing.T) {
	e1 := errors.New("nats timeout")
	e2 := errors.New("redis down")
	chain := NewChain(nil, &fixedProvider{err: e1}, &fixedProvider{err: e2})

	_, err := chain.Quote(context.Background(), models.AssetSilver)
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("joined error should carry every cause: %v", err)
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(config.PricingConfig{
		FallbackGoldPrice:   7250,
		FallbackSilverPrice: 92.5,
	})

	gold, err := p.Quote(context.Background(), models.AssetGold)
	if err != nil || gold != 7250 {
		t.Fatalf("gold = %f, err = %v", gold, err)
	}
	silver, err := p.Quote(context.Background(), models.AssetSilver)
	if err != nil || silver != 92.5 {
		t.Fatalf("silver = %f, err = %v", silver, err)
	}
	if _, err := p.Quote(context.Background(), models.AssetType("platinum")); err == nil {
		t.Fatal("unknown asset must fail")
	}
}
