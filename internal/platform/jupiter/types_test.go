package jupiter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

const testMint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

func quoteFields(impact string) map[string]interface{} {
	return map[string]interface{}{
		"inputMint":            domain.WrappedSOLMint,
		"outputMint":           testMint,
		"inAmount":             "100000000",
		"outAmount":            "52340000000",
		"otherAmountThreshold": "49723000000",
		"swapMode":             "ExactIn",
		"slippageBps":          500,
		"priceImpactPct":       impact,
		"routePlan": []interface{}{
			map[string]interface{}{
				"swapInfo": map[string]interface{}{"ammKey": "amm1", "label": "Raydium"},
				"percent":  100,
			},
		},
		"contextSlot": 312345678,
		"timeTaken":   0.012,
	}
}

func quoteBody(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return b
}

func TestParseQuote(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	body := quoteBody(t, quoteFields("0.75"))

	q, err := parseQuote(body, domain.TierPaid, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), q.InAmount)
	assert.Equal(t, uint64(52_340_000_000), q.OutAmount)
	assert.Equal(t, uint64(49_723_000_000), q.OtherAmountThreshold)
	assert.Equal(t, "ExactIn", q.SwapMode)
	assert.Equal(t, 500, q.SlippageBps)
	assert.Equal(t, "0.75", q.PriceImpactPct.String())
	assert.Equal(t, domain.TierPaid, q.Tier)
	assert.Equal(t, now, q.FetchedAt)
	assert.JSONEq(t, string(body), string(q.Raw))
}

func TestParseQuote_MissingFieldsAreParseFailures(t *testing.T) {
	for _, field := range []string{
		"inAmount", "outAmount", "otherAmountThreshold", "swapMode", "routePlan", "priceImpactPct", "inputMint", "outputMint",
	} {
		t.Run(field, func(t *testing.T) {
			fields := quoteFields("0.1")
			delete(fields, field)
			_, err := parseQuote(quoteBody(t, fields), domain.TierFree, time.Now())
			require.ErrorIs(t, err, domain.ErrQuoteParse)
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestParseQuote_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value interface{}
	}{
		{"float amount", "outAmount", "12.5"},
		{"negative amount", "inAmount", "-1"},
		{"numeric amount", "otherAmountThreshold", 100},
		{"bad impact", "priceImpactPct", "lots"},
		{"route plan object", "routePlan", map[string]int{"a": 1}},
		{"null route plan", "routePlan", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := quoteFields("0.1")
			fields[tt.field] = tt.value
			_, err := parseQuote(quoteBody(t, fields), domain.TierFree, time.Now())
			require.ErrorIs(t, err, domain.ErrQuoteParse)
		})
	}
}

func TestParseQuote_EmptyRouteIsUnavailable(t *testing.T) {
	fields := quoteFields("0.1")
	fields["routePlan"] = []interface{}{}
	_, err := parseQuote(quoteBody(t, fields), domain.TierFree, time.Now())
	require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
}

func TestParseSwap(t *testing.T) {
	tx, err := parseSwap([]byte(`{"swapTransaction":"AQAB","lastValidBlockHeight":279632475}`), domain.TierFree)
	require.NoError(t, err)
	assert.Equal(t, "AQAB", tx.Transaction)
	assert.Equal(t, uint64(279632475), tx.LastValidBlockHeight)
	assert.Equal(t, domain.TierFree, tx.Tier)

	_, err = parseSwap([]byte(`{"lastValidBlockHeight":1}`), domain.TierFree)
	require.ErrorIs(t, err, domain.ErrQuoteParse)
}

func TestCheckHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{401, `{"message":"invalid key"}`, domain.ErrUnauthorized},
		{403, ``, domain.ErrUnauthorized},
		{429, ``, domain.ErrRateLimited},
		{502, `bad gateway`, domain.ErrTransientNetwork},
		{400, `{"error":"Could not find any route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`, domain.ErrQuoteUnavailable},
		{400, `{"error":"The token is not tradable","errorCode":"TOKEN_NOT_TRADABLE"}`, domain.ErrQuoteUnavailable},
		{404, `not here`, domain.ErrNotFound},
	}
	for _, tt := range tests {
		err := checkHTTPStatus(tt.status, []byte(tt.body))
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
	assert.NoError(t, checkHTTPStatus(200, nil))
}
