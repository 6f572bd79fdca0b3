package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Source quotes crypto assets in the platform currency. Quotes are point in
// time; callers stamp the quote with an expiry.
type Source interface {
	Quote(ctx context.Context, asset string) (decimal.Decimal, error)
}

// StaticSource serves fixed per-asset rates from configuration.
type StaticSource struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewStaticSource(rates map[string]decimal.Decimal) *StaticSource {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for asset, rate := range rates {
		normalized[strings.ToUpper(asset)] = rate
	}
	return &StaticSource{rates: normalized}
}

func (s *StaticSource) Quote(ctx context.Context, asset string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.rates[strings.ToUpper(asset)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for asset %q", asset)
	}
	return rate, nil
}

// Set replaces a single asset rate. Used by operational tooling and tests.
func (s *StaticSource) Set(asset string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[strings.ToUpper(asset)] = rate
}
