package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/allocator/pkg/logger"
	"github.com/wonny/allocator/pkg/redis"
)

// marketKey is the redis hash holding every known market
const marketKey = "dcapal:market"

// Market is a base/quote pair with its last observed price
type Market struct {
	ID        string    `json:"id"`
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketID builds the identifier of a base/quote pair
func MarketID(base, quote string) string {
	return strings.ToLower(base) + "-" + strings.ToLower(quote)
}

// MarketRepository stores markets in a redis hash keyed by market id.
// With redis disabled it stores nothing and finds nothing.
type MarketRepository struct {
	client *redis.Client
	logger *logger.Logger
}

// NewMarketRepository creates a new repository
func NewMarketRepository(client *redis.Client, log *logger.Logger) *MarketRepository {
	return &MarketRepository{
		client: client,
		logger: log,
	}
}

// Store upserts a market; it reports whether a new field was created
func (r *MarketRepository) Store(ctx context.Context, m Market) (bool, error) {
	if !r.client.Enabled() {
		return false, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("marshal market %s: %w", m.ID, err)
	}

	n, err := r.client.Redis().HSet(ctx, marketKey, m.ID, data).Result()
	if err != nil {
		return false, fmt.Errorf("store market %s: %w", m.ID, err)
	}
	return n > 0, nil
}

// Find returns a market or nil when unknown
func (r *MarketRepository) Find(ctx context.Context, id string) (*Market, error) {
	if !r.client.Enabled() {
		return nil, nil
	}

	data, err := r.client.Redis().HGet(ctx, marketKey, id).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find market %s: %w", id, err)
	}

	var m Market
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("decode market %s: %w", id, err)
	}
	return &m, nil
}

// FindMany returns markets in the order of ids; unknown or undecodable entries are nil
func (r *MarketRepository) FindMany(ctx context.Context, ids []string) ([]*Market, error) {
	out := make([]*Market, len(ids))
	if !r.client.Enabled() || len(ids) == 0 {
		return out, nil
	}

	values, err := r.client.Redis().HMGet(ctx, marketKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("find markets: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		m, err := decodeMarket(s)
		if err != nil {
			r.logger.WithError(err).WithField("market", ids[i]).Error("skipping undecodable market")
			continue
		}
		out[i] = m
	}
	return out, nil
}

// LoadAll returns every decodable market
func (r *MarketRepository) LoadAll(ctx context.Context) ([]Market, error) {
	if !r.client.Enabled() {
		return nil, nil
	}

	values, err := r.client.Redis().HVals(ctx, marketKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}

	markets := make([]Market, 0, len(values))
	for _, v := range values {
		m, err := decodeMarket(v)
		if err != nil {
			r.logger.WithError(err).Error("skipping undecodable market")
			continue
		}
		markets = append(markets, *m)
	}
	return markets, nil
}

func decodeMarket(s string) (*Market, error) {
	var m Market
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode market: %w", err)
	}
	if m.ID == "" {
		return nil, errors.New("decode market: missing id")
	}
	return &m, nil
}
