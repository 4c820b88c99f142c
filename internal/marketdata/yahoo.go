package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/pkg/httputil"
	"github.com/wonny/allocator/pkg/logger"
)

// equityTypes are the Yahoo quote types offered as portfolio assets
var equityTypes = map[string]bool{
	"EQUITY":     true,
	"ETF":        true,
	"MUTUALFUND": true,
}

// YahooClient searches equities and fetches their prices in native currency
// ⭐ SSOT: Yahoo Finance API 호출은 이 클라이언트에서만
type YahooClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	searchURL  string
	chartURL   string
}

// NewYahooClient creates a new Yahoo Finance client
func NewYahooClient(httpClient *httputil.Client, log *logger.Logger, searchURL, chartURL string) *YahooClient {
	return &YahooClient{
		httpClient: httpClient,
		logger:     log.WithField("provider", ProviderYahoo),
		searchURL:  strings.TrimRight(searchURL, "/"),
		chartURL:   strings.TrimRight(chartURL, "/"),
	}
}

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		LongName  string `json:"longname"`
		ShortName string `json:"shortname"`
		QuoteType string `json:"quoteType"`
		Exchange  string `json:"exchange"`
	} `json:"quotes"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Name implements contracts.AssetProvider
func (c *YahooClient) Name() string {
	return ProviderYahoo
}

// Assets searches equities, ETFs and mutual funds matching query
func (c *YahooClient) Assets(ctx context.Context, kind contracts.AssetKind, query string) ([]contracts.AssetInfo, error) {
	if kind != contracts.AssetKindEquity {
		return nil, fmt.Errorf("yahoo: unsupported asset kind %q", kind)
	}

	endpoint := fmt.Sprintf("%s?%s", c.searchURL, url.Values{"q": {query}}.Encode())
	var raw yahooSearchResponse
	if err := c.httpClient.GetJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("yahoo search %q: %w", query, err)
	}

	assets := make([]contracts.AssetInfo, 0, len(raw.Quotes))
	for _, q := range raw.Quotes {
		typ := strings.ToUpper(q.QuoteType)
		if !equityTypes[typ] || q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		assets = append(assets, contracts.AssetInfo{
			Symbol:   q.Symbol,
			Name:     name,
			Kind:     contracts.AssetKindEquity,
			Type:     typ,
			Exchange: q.Exchange,
		})
	}
	return assets, nil
}

// Price returns the last market price in the instrument's own currency.
// The quote argument is recorded but not converted here.
func (c *YahooClient) Price(ctx context.Context, symbol, quote string) (contracts.Price, bool, error) {
	endpoint := fmt.Sprintf("%s/%s", c.chartURL, url.PathEscape(symbol))

	var raw yahooChartResponse
	if err := c.httpClient.GetJSON(ctx, endpoint, &raw); err != nil {
		return contracts.Price{}, false, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if raw.Chart.Error != nil {
		c.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"code":   raw.Chart.Error.Code,
		}).Debug("chart not available")
		return contracts.Price{}, false, nil
	}
	if len(raw.Chart.Result) == 0 || raw.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return contracts.Price{}, false, nil
	}

	meta := raw.Chart.Result[0].Meta
	return contracts.Price{
		Base:      symbol,
		Quote:     strings.ToUpper(quote),
		Price:     meta.RegularMarketPrice,
		Currency:  strings.ToUpper(meta.Currency),
		FetchedAt: time.Now().UTC(),
	}, true, nil
}
