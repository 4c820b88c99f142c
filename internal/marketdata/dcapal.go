package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/pkg/httputil"
	"github.com/wonny/allocator/pkg/logger"
)

// DcaPalClient talks to the fiat/crypto market data backend
// ⭐ SSOT: 법정화폐/암호화폐 시세 API 호출은 이 클라이언트에서만
type DcaPalClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewDcaPalClient creates a new client for the given base URL
func NewDcaPalClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *DcaPalClient {
	return &DcaPalClient{
		httpClient: httpClient,
		logger:     log.WithField("provider", ProviderDcaPal),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type dcapalAsset struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type dcapalPrice struct {
	Price float64 `json:"price"`
}

// Name implements contracts.AssetProvider
func (c *DcaPalClient) Name() string {
	return ProviderDcaPal
}

// Assets returns the whole fiat or crypto catalog; query is ignored
func (c *DcaPalClient) Assets(ctx context.Context, kind contracts.AssetKind, _ string) ([]contracts.AssetInfo, error) {
	if kind != contracts.AssetKindFiat && kind != contracts.AssetKindCrypto {
		return nil, fmt.Errorf("dcapal: unsupported asset kind %q", kind)
	}

	var raw []dcapalAsset
	if err := c.httpClient.GetJSON(ctx, fmt.Sprintf("%s/assets/%s", c.baseURL, kind), &raw); err != nil {
		return nil, fmt.Errorf("dcapal assets %s: %w", kind, err)
	}

	assets := make([]contracts.AssetInfo, 0, len(raw))
	for _, a := range raw {
		symbol := a.Symbol
		if symbol == "" {
			symbol = a.ID
		}
		if symbol == "" {
			continue
		}
		assets = append(assets, contracts.AssetInfo{
			Symbol: strings.ToUpper(symbol),
			Name:   a.Name,
			Kind:   kind,
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"kind":  kind,
		"count": len(assets),
	}).Debug("asset catalog fetched")
	return assets, nil
}

// Price returns the conversion rate of symbol in quote.
// An unknown market is not an error: it reports ok=false.
func (c *DcaPalClient) Price(ctx context.Context, symbol, quote string) (contracts.Price, bool, error) {
	base := strings.ToLower(symbol)
	q := url.Values{"quote": {strings.ToLower(quote)}}
	endpoint := fmt.Sprintf("%s/price/%s?%s", c.baseURL, url.PathEscape(base), q.Encode())

	var raw dcapalPrice
	if err := c.httpClient.GetJSON(ctx, endpoint, &raw); err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return contracts.Price{}, false, nil
		}
		return contracts.Price{}, false, fmt.Errorf("dcapal price %s/%s: %w", symbol, quote, err)
	}
	if raw.Price <= 0 {
		return contracts.Price{}, false, nil
	}

	return contracts.Price{
		Base:      strings.ToUpper(symbol),
		Quote:     strings.ToUpper(quote),
		Price:     raw.Price,
		Currency:  strings.ToUpper(quote),
		FetchedAt: time.Now().UTC(),
	}, true, nil
}
