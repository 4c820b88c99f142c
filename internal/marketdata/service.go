package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/metrics"
	"github.com/wonny/allocator/pkg/logger"
	"github.com/wonny/allocator/pkg/redis"
)

// Provider names used in logs, metrics and cache keys
const (
	ProviderDcaPal = "dcapal"
	ProviderYahoo  = "yahoo"
)

const (
	// MinQueryLength is the shortest search text that triggers a lookup
	MinQueryLength = 3

	// maxMatches caps the fuzzy matches returned per catalog
	maxMatches = 20
)

// SearchResult groups lookup candidates by category
type SearchResult struct {
	Query  string                `json:"query"`
	Fiat   []contracts.AssetInfo `json:"fiat"`
	Crypto []contracts.AssetInfo `json:"crypto"`
	Equity []contracts.AssetInfo `json:"equity"`
}

func emptyResult(query string) SearchResult {
	return SearchResult{
		Query:  query,
		Fiat:   []contracts.AssetInfo{},
		Crypto: []contracts.AssetInfo{},
		Equity: []contracts.AssetInfo{},
	}
}

// Empty reports whether no category has a candidate
func (r SearchResult) Empty() bool {
	return len(r.Fiat) == 0 && len(r.Crypto) == 0 && len(r.Equity) == 0
}

// Service is the asset lookup facade over the market data providers.
// Providers are best effort: a failing provider yields no candidates, never an error.
type Service struct {
	catalog  contracts.AssetProvider // fiat and crypto
	equities contracts.AssetProvider
	cache    *redis.Cache
	markets  *MarketRepository
	logger   *logger.Logger
}

// NewService creates a new lookup service
func NewService(catalog, equities contracts.AssetProvider, cache *redis.Cache, markets *MarketRepository, log *logger.Logger) *Service {
	return &Service{
		catalog:  catalog,
		equities: equities,
		cache:    cache,
		markets:  markets,
		logger:   log,
	}
}

// Assets returns the full fiat or crypto catalog, cached for five minutes
func (s *Service) Assets(ctx context.Context, kind contracts.AssetKind) ([]contracts.AssetInfo, error) {
	key := redis.AssetListKey(s.catalog.Name(), string(kind))
	assets, hit, err := redis.GetOrSet(ctx, s.cache, key, redis.TTLAssetList, func(ctx context.Context) ([]contracts.AssetInfo, error) {
		return s.catalog.Assets(ctx, kind, "")
	})
	s.observeCached(s.catalog.Name(), hit, err)
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// Search looks up text in every category concurrently.
// Texts shorter than MinQueryLength return an empty result without any lookup.
func (s *Service) Search(ctx context.Context, text string) (SearchResult, error) {
	text = strings.TrimSpace(text)
	res := emptyResult(text)
	if len([]rune(text)) < MinQueryLength {
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Fiat = s.matchCatalog(gctx, contracts.AssetKindFiat, text)
		return nil
	})
	g.Go(func() error {
		res.Crypto = s.matchCatalog(gctx, contracts.AssetKindCrypto, text)
		return nil
	})
	g.Go(func() error {
		res.Equity = s.searchEquities(gctx, text)
		return nil
	})
	_ = g.Wait()

	// a canceled search is discarded by the caller, never half-applied
	if err := ctx.Err(); err != nil {
		return emptyResult(text), err
	}

	s.logger.WithFields(map[string]interface{}{
		"query":  text,
		"fiat":   len(res.Fiat),
		"crypto": len(res.Crypto),
		"equity": len(res.Equity),
	}).Debug("asset search completed")
	return res, nil
}

func (s *Service) matchCatalog(ctx context.Context, kind contracts.AssetKind, text string) []contracts.AssetInfo {
	assets, err := s.Assets(ctx, kind)
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Warn("asset catalog unavailable")
		return []contracts.AssetInfo{}
	}
	return fuzzyMatch(assets, text)
}

func (s *Service) searchEquities(ctx context.Context, text string) []contracts.AssetInfo {
	key := redis.SearchKey(s.equities.Name(), text)
	assets, hit, err := redis.GetOrSet(ctx, s.cache, key, redis.TTLSearch, func(ctx context.Context) ([]contracts.AssetInfo, error) {
		return s.equities.Assets(ctx, contracts.AssetKindEquity, text)
	})
	s.observeCached(s.equities.Name(), hit, err)
	if err != nil {
		s.logger.WithError(err).Warn("equity search unavailable")
		return []contracts.AssetInfo{}
	}
	return assets
}

// Price returns symbol priced in quote.
// Fiat and crypto come from the catalog provider; equities are priced in their own
// currency and converted through the catalog provider when it differs from quote.
// ok=false means the price is not available yet.
func (s *Service) Price(ctx context.Context, symbol, quote string) (contracts.Price, bool, error) {
	symbol, quote = strings.TrimSpace(symbol), strings.ToUpper(strings.TrimSpace(quote))
	if symbol == "" || quote == "" {
		return contracts.Price{}, false, contracts.ValidationError{Field: "symbol", Message: "symbol and quote are required"}
	}

	var cached contracts.Price
	if found, _ := s.cache.Get(ctx, redis.PriceKey(symbol, quote), &cached); found {
		metrics.CacheHits.Inc()
		return cached, true, nil
	}
	metrics.CacheMisses.Inc()

	price, ok, err := s.lookupPrice(ctx, symbol, quote)
	if err != nil {
		if last, found := s.lastKnown(ctx, symbol, quote); found {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("provider failed, serving last known price")
			return last, true, nil
		}
		return contracts.Price{}, false, err
	}
	if !ok {
		return contracts.Price{}, false, nil
	}

	if err := s.cache.Set(ctx, redis.PriceKey(symbol, quote), price, redis.TTLPrice); err != nil {
		s.logger.WithError(err).Debug("price cache write failed")
	}
	if _, err := s.markets.Store(ctx, Market{
		ID:        MarketID(symbol, quote),
		Base:      strings.ToLower(symbol),
		Quote:     strings.ToLower(quote),
		Price:     price.Price,
		UpdatedAt: price.FetchedAt,
	}); err != nil {
		s.logger.WithError(err).Debug("market store failed")
	}
	return price, true, nil
}

func (s *Service) lookupPrice(ctx context.Context, symbol, quote string) (contracts.Price, bool, error) {
	if s.inCatalog(ctx, symbol) {
		price, ok, err := s.catalog.Price(ctx, symbol, quote)
		s.observe(s.catalog.Name(), err)
		return price, ok, err
	}

	native, ok, err := s.equities.Price(ctx, symbol, quote)
	s.observe(s.equities.Name(), err)
	if err != nil || !ok {
		return contracts.Price{}, false, err
	}
	if native.Currency == "" || strings.EqualFold(native.Currency, quote) {
		native.Currency = quote
		return native, true, nil
	}

	fx, ok, err := s.catalog.Price(ctx, native.Currency, quote)
	s.observe(s.catalog.Name(), err)
	if err != nil || !ok {
		return contracts.Price{}, false, err
	}

	return contracts.Price{
		Base:      native.Base,
		Quote:     quote,
		Price:     native.Price * fx.Price,
		Currency:  native.Currency,
		FetchedAt: time.Now().UTC(),
	}, true, nil
}

// inCatalog reports whether symbol is a known fiat or crypto asset
func (s *Service) inCatalog(ctx context.Context, symbol string) bool {
	for _, kind := range []contracts.AssetKind{contracts.AssetKindFiat, contracts.AssetKindCrypto} {
		assets, err := s.Assets(ctx, kind)
		if err != nil {
			continue
		}
		for _, a := range assets {
			if strings.EqualFold(a.Symbol, symbol) {
				return true
			}
		}
	}
	return false
}

func (s *Service) lastKnown(ctx context.Context, symbol, quote string) (contracts.Price, bool) {
	m, err := s.markets.Find(ctx, MarketID(symbol, quote))
	if err != nil || m == nil || m.Price <= 0 {
		return contracts.Price{}, false
	}
	return contracts.Price{
		Base:      strings.ToUpper(m.Base),
		Quote:     strings.ToUpper(m.Quote),
		Price:     m.Price,
		Currency:  strings.ToUpper(m.Quote),
		FetchedAt: m.UpdatedAt,
	}, true
}

// Warm refreshes the cached fiat and crypto catalogs
func (s *Service) Warm(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range []contracts.AssetKind{contracts.AssetKindFiat, contracts.AssetKindCrypto} {
		assets, err := s.catalog.Assets(ctx, kind, "")
		s.observe(s.catalog.Name(), err)
		if err != nil {
			return total, fmt.Errorf("refresh %s catalog: %w", kind, err)
		}
		if err := s.cache.Set(ctx, redis.AssetListKey(s.catalog.Name(), string(kind)), assets, redis.TTLAssetList); err != nil {
			return total, fmt.Errorf("cache %s catalog: %w", kind, err)
		}
		total += len(assets)
	}
	return total, nil
}

func (s *Service) observeCached(provider string, hit bool, err error) {
	if hit {
		metrics.CacheHits.Inc()
		return
	}
	metrics.CacheMisses.Inc()
	s.observe(provider, err)
}

func (s *Service) observe(provider string, err error) {
	status := metrics.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = metrics.StatusTimeout
	default:
		status = metrics.StatusError
	}
	metrics.LookupRequests.WithLabelValues(provider, status).Inc()
}

// assetSource adapts a catalog to fuzzy.Source, matching on symbol and name
type assetSource []contracts.AssetInfo

func (a assetSource) String(i int) string {
	return strings.ToLower(a[i].Symbol + " " + a[i].Name)
}

func (a assetSource) Len() int {
	return len(a)
}

// fuzzyMatch returns the best matches of text, best first; ties keep catalog order
func fuzzyMatch(assets []contracts.AssetInfo, text string) []contracts.AssetInfo {
	matches := fuzzy.FindFrom(strings.ToLower(text), assetSource(assets))

	out := make([]contracts.AssetInfo, 0, min(len(matches), maxMatches))
	for _, m := range matches {
		if len(out) == maxMatches {
			break
		}
		out = append(out, assets[m.Index])
	}
	return out
}
