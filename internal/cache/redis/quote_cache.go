package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// QuoteCache implements domain.QuoteCache with one string key per quote
// at "quote:{key}", expiring with the quote TTL. Sharing it lets several
// processes reuse a quote fetched by any of them.
type QuoteCache struct {
	c *Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{c: c}
}

// cachedQuote is the stored form. Raw carries the verbatim response so it
// can be echoed back to the swap endpoint.
type cachedQuote struct {
	InputMint            string          `json:"input_mint"`
	OutputMint           string          `json:"output_mint"`
	InAmount             uint64          `json:"in_amount"`
	OutAmount            uint64          `json:"out_amount"`
	OtherAmountThreshold uint64          `json:"other_amount_threshold"`
	SwapMode             string          `json:"swap_mode"`
	SlippageBps          int             `json:"slippage_bps"`
	PriceImpactPct       string          `json:"price_impact_pct"`
	RoutePlan            json.RawMessage `json:"route_plan"`
	Tier                 domain.Tier     `json:"tier"`
	FetchedAt            time.Time       `json:"fetched_at"`
	Raw                  json.RawMessage `json:"raw"`
}

func (qc *QuoteCache) quoteKey(key string) string {
	return qc.c.key("quote", key)
}

// Get returns domain.ErrNotFound on a miss.
func (qc *QuoteCache) Get(ctx context.Context, key string) (*domain.Quote, error) {
	data, err := qc.c.rdb.Get(ctx, qc.quoteKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get quote %s: %w", key, err)
	}

	var cq cachedQuote
	if err := json.Unmarshal(data, &cq); err != nil {
		return nil, fmt.Errorf("redis: decode quote %s: %w", key, err)
	}
	q := &domain.Quote{
		InputMint:            cq.InputMint,
		OutputMint:           cq.OutputMint,
		InAmount:             cq.InAmount,
		OutAmount:            cq.OutAmount,
		OtherAmountThreshold: cq.OtherAmountThreshold,
		SwapMode:             cq.SwapMode,
		SlippageBps:          cq.SlippageBps,
		RoutePlan:            cq.RoutePlan,
		Tier:                 cq.Tier,
		FetchedAt:            cq.FetchedAt,
		Raw:                  cq.Raw,
	}
	if err := q.PriceImpactPct.UnmarshalText([]byte(cq.PriceImpactPct)); err != nil {
		return nil, fmt.Errorf("redis: decode quote %s: price impact: %w", key, err)
	}
	return q, nil
}

// Set stores q for ttl.
func (qc *QuoteCache) Set(ctx context.Context, key string, q *domain.Quote, ttl time.Duration) error {
	data, err := json.Marshal(cachedQuote{
		InputMint:            q.InputMint,
		OutputMint:           q.OutputMint,
		InAmount:             q.InAmount,
		OutAmount:            q.OutAmount,
		OtherAmountThreshold: q.OtherAmountThreshold,
		SwapMode:             q.SwapMode,
		SlippageBps:          q.SlippageBps,
		PriceImpactPct:       q.PriceImpactPct.String(),
		RoutePlan:            q.RoutePlan,
		Tier:                 q.Tier,
		FetchedAt:            q.FetchedAt,
		Raw:                  q.Raw,
	})
	if err != nil {
		return fmt.Errorf("redis: encode quote %s: %w", key, err)
	}
	if err := qc.c.rdb.Set(ctx, qc.quoteKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// Len counts live quote keys. It scans, so it is meant for diagnostics.
func (qc *QuoteCache) Len(ctx context.Context) int {
	n := 0
	iter := qc.c.rdb.Scan(ctx, 0, qc.quoteKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}

// Clear deletes every quote key.
func (qc *QuoteCache) Clear(ctx context.Context) error {
	iter := qc.c.rdb.Scan(ctx, 0, qc.quoteKey("*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan quotes: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := qc.c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: clear quotes: %w", err)
	}
	return nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
