package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/pkg/config"
	"github.com/wonny/allocator/pkg/httputil"
	"github.com/wonny/allocator/pkg/logger"
	"github.com/wonny/allocator/pkg/redis"
)

func testHTTP() *httputil.Client {
	cfg := &config.Config{Market: config.MarketConfig{RateLimit: 1000, Timeout: 2 * time.Second}}
	return httputil.New(cfg, logger.Nop()).DisableRetry()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fakeDcaPal serves a small fiat/crypto catalog and a few prices
func fakeDcaPal(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	prices := map[string]float64{
		"btc-eur": 30000,
		"btc-usd": 33000,
		"usd-eur": 0.9,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		switch {
		case r.URL.Path == "/assets/fiat":
			writeJSON(w, []map[string]string{
				{"id": "usd", "symbol": "usd", "name": "US Dollar"},
				{"id": "eur", "symbol": "eur", "name": "Euro"},
			})
		case r.URL.Path == "/assets/crypto":
			writeJSON(w, []map[string]string{
				{"id": "btc", "symbol": "btc", "name": "Bitcoin"},
				{"id": "eth", "symbol": "eth", "name": "Ethereum"},
			})
		case strings.HasPrefix(r.URL.Path, "/price/"):
			base := strings.TrimPrefix(r.URL.Path, "/price/")
			p, ok := prices[base+"-"+r.URL.Query().Get("quote")]
			if !ok {
				http.Error(w, "price not available", http.StatusNotFound)
				return
			}
			writeJSON(w, map[string]float64{"price": p})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeYahoo serves search and chart endpoints; q=slow blocks until the client gives up
func fakeYahoo(t *testing.T, fail bool, slowSeen chan<- struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		switch {
		case r.URL.Path == "/search":
			if r.URL.Query().Get("q") == "slow" {
				if slowSeen != nil {
					slowSeen <- struct{}{}
				}
				<-r.Context().Done()
				return
			}
			writeJSON(w, map[string]interface{}{
				"quotes": []map[string]string{
					{"symbol": "AAPL", "longname": "Apple Inc.", "quoteType": "EQUITY", "exchange": "NMS"},
					{"symbol": "VWCE.DE", "longname": "Vanguard FTSE All-World", "quoteType": "ETF", "exchange": "GER"},
					{"symbol": "AAPL240119C", "longname": "Apple option", "quoteType": "OPTION", "exchange": "OPR"},
				},
			})
		case r.URL.Path == "/chart/AAPL":
			writeJSON(w, map[string]interface{}{
				"chart": map[string]interface{}{
					"result": []map[string]interface{}{
						{"meta": map[string]interface{}{"currency": "USD", "symbol": "AAPL", "regularMarketPrice": 100.0}},
					},
				},
			})
		default:
			writeJSON(w, map[string]interface{}{
				"chart": map[string]interface{}{
					"result": nil,
					"error":  map[string]string{"code": "Not Found", "description": "No data found"},
				},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, dcapal, yahoo *httptest.Server) *Service {
	t.Helper()
	log := logger.Nop()
	client := redis.Disabled()
	return NewService(
		NewDcaPalClient(testHTTP(), log, dcapal.URL),
		NewYahooClient(testHTTP(), log, yahoo.URL+"/search", yahoo.URL+"/chart"),
		redis.NewCache(client, "test"),
		NewMarketRepository(client, log),
		log,
	)
}

func TestDcaPalClient_Assets(t *testing.T) {
	c := NewDcaPalClient(testHTTP(), logger.Nop(), fakeDcaPal(t, nil).URL)

	assets, err := c.Assets(context.Background(), contracts.AssetKindCrypto, "")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, contracts.AssetInfo{Symbol: "BTC", Name: "Bitcoin", Kind: contracts.AssetKindCrypto}, assets[0])

	_, err = c.Assets(context.Background(), contracts.AssetKindEquity, "")
	assert.Error(t, err)
}

func TestDcaPalClient_Price(t *testing.T) {
	c := NewDcaPalClient(testHTTP(), logger.Nop(), fakeDcaPal(t, nil).URL)

	p, ok, err := c.Price(context.Background(), "BTC", "EUR")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30000.0, p.Price)
	assert.Equal(t, "BTC", p.Base)
	assert.Equal(t, "EUR", p.Quote)

	_, ok, err = c.Price(context.Background(), "DOGE", "EUR")
	assert.NoError(t, err, "an unknown market is not an error")
	assert.False(t, ok)
}

func TestYahooClient_AssetsFiltersQuoteTypes(t *testing.T) {
	srv := fakeYahoo(t, false, nil)
	c := NewYahooClient(testHTTP(), logger.Nop(), srv.URL+"/search", srv.URL+"/chart")

	assets, err := c.Assets(context.Background(), contracts.AssetKindEquity, "apple")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "AAPL", assets[0].Symbol)
	assert.Equal(t, "EQUITY", assets[0].Type)
	assert.Equal(t, "ETF", assets[1].Type)
}

func TestYahooClient_Price(t *testing.T) {
	srv := fakeYahoo(t, false, nil)
	c := NewYahooClient(testHTTP(), logger.Nop(), srv.URL+"/search", srv.URL+"/chart")

	p, ok, err := c.Price(context.Background(), "AAPL", "eur")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, p.Price)
	assert.Equal(t, "USD", p.Currency)

	_, ok, err = c.Price(context.Background(), "NOPE", "EUR")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestService_SearchShortQueryIgnored(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, fakeDcaPal(t, &calls), fakeYahoo(t, false, nil))

	res, err := svc.Search(context.Background(), "bt")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Zero(t, calls.Load())
}

func TestService_SearchFanOut(t *testing.T) {
	svc := newTestService(t, fakeDcaPal(t, nil), fakeYahoo(t, false, nil))

	res, err := svc.Search(context.Background(), "bitc")
	require.NoError(t, err)
	require.NotEmpty(t, res.Crypto)
	assert.Equal(t, "BTC", res.Crypto[0].Symbol)
	assert.Empty(t, res.Fiat)
	assert.Len(t, res.Equity, 2)
}

func TestService_SearchProviderFailureIsolated(t *testing.T) {
	svc := newTestService(t, fakeDcaPal(t, nil), fakeYahoo(t, true, nil))

	res, err := svc.Search(context.Background(), "euro")
	require.NoError(t, err)
	assert.Empty(t, res.Equity)
	require.NotEmpty(t, res.Fiat)
	assert.Equal(t, "EUR", res.Fiat[0].Symbol)
}

func TestService_PriceCrypto(t *testing.T) {
	svc := newTestService(t, fakeDcaPal(t, nil), fakeYahoo(t, false, nil))

	p, ok, err := svc.Price(context.Background(), "btc", "usd")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 33000.0, p.Price)
}

func TestService_PriceEquityConverted(t *testing.T) {
	svc := newTestService(t, fakeDcaPal(t, nil), fakeYahoo(t, false, nil))

	p, ok, err := svc.Price(context.Background(), "AAPL", "EUR")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 90.0, p.Price, 1e-9)
	assert.Equal(t, "EUR", p.Quote)
	assert.Equal(t, "USD", p.Currency)

	p, ok, err = svc.Price(context.Background(), "AAPL", "USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, p.Price)
}

func TestService_PriceNotAvailable(t *testing.T) {
	svc := newTestService(t, fakeDcaPal(t, nil), fakeYahoo(t, false, nil))

	_, ok, err := svc.Price(context.Background(), "ETH", "EUR")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.Price(context.Background(), "", "EUR")
	assert.ErrorIs(t, err, contracts.ErrInvalidProblem)
}

func TestService_Warm(t *testing.T) {
	svc := newTestService(t, fakeDcaPal(t, nil), fakeYahoo(t, false, nil))

	n, err := svc.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSearcher_SupersededSearchDiscarded(t *testing.T) {
	slowSeen := make(chan struct{}, 1)
	svc := newTestService(t, fakeDcaPal(t, nil), fakeYahoo(t, false, slowSeen))
	s := NewSearcher(svc)
	defer s.Stop()

	first := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "slow")
		first <- err
	}()

	select {
	case <-slowSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("slow search never reached the provider")
	}

	res, err := s.Search(context.Background(), "bitc")
	require.NoError(t, err)
	assert.Equal(t, "bitc", res.Query)

	assert.ErrorIs(t, <-first, contracts.ErrStaleResult)
	assert.Equal(t, "bitc", s.Last().Query)
}

func TestFuzzyMatch(t *testing.T) {
	assets := []contracts.AssetInfo{
		{Symbol: "BTC", Name: "Bitcoin"},
		{Symbol: "BCH", Name: "Bitcoin Cash"},
		{Symbol: "ETH", Name: "Ethereum"},
	}

	got := fuzzyMatch(assets, "Bitcoin")
	require.Len(t, got, 2)
	for _, a := range got {
		assert.Contains(t, a.Name, "Bitcoin")
	}
	assert.Empty(t, fuzzyMatch(assets, "xyz"))
}

func TestMarketRepository_Disabled(t *testing.T) {
	repo := NewMarketRepository(redis.Disabled(), logger.Nop())
	ctx := context.Background()

	created, err := repo.Store(ctx, Market{ID: MarketID("BTC", "EUR"), Base: "btc", Quote: "eur", Price: 1})
	require.NoError(t, err)
	assert.False(t, created)

	m, err := repo.Find(ctx, "btc-eur")
	require.NoError(t, err)
	assert.Nil(t, m)

	many, err := repo.FindMany(ctx, []string{"btc-eur", "eth-eur"})
	require.NoError(t, err)
	assert.Equal(t, []*Market{nil, nil}, many)

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDecodeMarket(t *testing.T) {
	m, err := decodeMarket(`{"id":"btc-eur","base":"btc","quote":"eur","price":30000}`)
	require.NoError(t, err)
	assert.Equal(t, "btc-eur", m.ID)
	assert.Equal(t, 30000.0, m.Price)

	_, err = decodeMarket(`{"id":`)
	assert.Error(t, err)

	_, err = decodeMarket(`{"base":"btc"}`)
	assert.Error(t, err)
}

func TestMarketID(t *testing.T) {
	assert.Equal(t, "btc-eur", MarketID("BTC", "Eur"))
}
