package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-relay/pkg/policy"
)

func quoteBody(outAmount, impact string) string {
	return `{
		"inputMint": "` + policy.MintSOL + `",
		"outputMint": "` + policy.MintUSDC + `",
		"inAmount": "1000000",
		"outAmount": "` + outAmount + `",
		"priceImpactPct": "` + impact + `",
		"slippageBps": 50,
		"routePlan": [{"percent": 100}]
	}`
}

func TestQuoteParsesResponseAndKeepsPayloadVerbatim(t *testing.T) {
	body := quoteBody("150000", "0.01")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "ExactIn", r.URL.Query().Get("swapMode"))
		assert.Equal(t, "1000000", r.URL.Query().Get("amount"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	q, err := c.Quote(context.Background(), policy.MintSOL, policy.MintUSDC, 1000000, 50)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000000), q.InAmount)
	assert.Equal(t, uint64(150000), q.OutAmount)
	assert.Equal(t, 50, q.SlippageBps)
	assert.Equal(t, body, string(q.Payload))
	assert.Empty(t, q.Warnings)
	assert.False(t, q.ComputedAt.IsZero())
}

func TestQuotePriceImpactWarnings(t *testing.T) {
	tests := []struct {
		impact  string
		contain string
	}{
		{"6.2", "high price impact"},
		{"2.5", "moderate price impact"},
	}
	for _, tt := range tests {
		t.Run(tt.impact, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(quoteBody("150000", tt.impact)))
			}))
			defer srv.Close()

			c := New(srv.URL, zerolog.Nop())
			q, err := c.Quote(context.Background(), policy.MintSOL, policy.MintUSDC, 1000000, 50)
			require.NoError(t, err)
			require.Len(t, q.Warnings, 1)
			assert.Contains(t, q.Warnings[0], tt.contain)
		})
	}
}

func TestQuoteRejectsMalformedAmounts(t *testing.T) {
	for _, outAmount := range []string{"0", "150abc", "-1", ""} {
		t.Run("outAmount "+outAmount, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(quoteBody(outAmount, "0")))
			}))
			defer srv.Close()

			c := New(srv.URL, zerolog.Nop())
			_, err := c.Quote(context.Background(), policy.MintSOL, policy.MintUSDC, 1000000, 50)
			assert.ErrorIs(t, err, ErrInvalidQuote)
		})
	}
}

func TestQuoteNoRouteIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode": "COULD_NOT_FIND_ANY_ROUTE", "error": "Could not find any route"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	_, err := c.Quote(context.Background(), policy.MintSOL, policy.MintUSDC, 1, 50)

	require.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.NotEmpty(t, apiErr.Suggestions)
}

func TestQuoteServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	_, err := c.Quote(context.Background(), policy.MintSOL, policy.MintUSDC, 1000000, 50)

	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestQuoteRecoversAfterTransientServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(quoteBody("150000", "0.01")))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	q, err := c.Quote(context.Background(), policy.MintSOL, policy.MintUSDC, 1000000, 50)

	require.NoError(t, err)
	assert.Equal(t, uint64(150000), q.OutAmount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSwapTransactionForwardsQuoteUntouched(t *testing.T) {
	payload := json.RawMessage(quoteBody("150000", "0.01"))
	rawTx := []byte{1, 2, 3, 4, 5}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swap", r.URL.Path)

		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, string(payload), string(req["quoteResponse"]))
		assert.Equal(t, `"executor"`, string(req["userPublicKey"]))
		assert.Equal(t, `"auto"`, string(req["prioritizationFeeLamports"]))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"swapTransaction": base64.StdEncoding.EncodeToString(rawTx),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	got, err := c.SwapTransaction(context.Background(), &Quote{Payload: payload}, "executor")
	require.NoError(t, err)
	assert.Equal(t, rawTx, got)
}

func TestSwapTransactionRejectsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	_, err := c.SwapTransaction(context.Background(), &Quote{Payload: json.RawMessage(`{}`)}, "executor")
	assert.ErrorIs(t, err, ErrInvalidQuote)
}
