package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// DefaultSlippageBps is applied when the caller does not specify one.
	DefaultSlippageBps = 50

	maxRetries     = 3
	requestTimeout = 10 * time.Second
)

var (
	impactStrong   = decimal.NewFromInt(5)
	impactAdvisory = decimal.NewFromInt(1)
)

// Quote is a validated, time-bounded price estimate. Payload holds the
// aggregator's raw quote response and is forwarded verbatim at execution
// time; it must never be mutated.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       uint64          `json:"inAmount"`
	OutAmount      uint64          `json:"outAmount"`
	PriceImpactPct decimal.Decimal `json:"priceImpactPct"`
	SlippageBps    int             `json:"slippageBps"`
	Payload        json.RawMessage `json:"payload"`
	ComputedAt     time.Time       `json:"computedAt"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// quoteView is the subset of the wire response the gateway validates.
type quoteView struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	SlippageBps    int    `json:"slippageBps"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	UseSharedAccounts         bool            `json:"useSharedAccounts"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

type apiErrorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// Client is the gateway to the Jupiter quote and swap endpoints.
type Client struct {
	apiURL     string
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a Jupiter client for the given API base URL.
func New(apiURL string, log zerolog.Logger) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.With().Str("component", "jupiter").Logger(),
	}
}

// Quote fetches an ExactIn quote and hardens it: positive output amount,
// price-impact warnings, ComputedAt stamp. The raw response is retained as
// the opaque execution payload.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", fmt.Sprintf("%d", amount))
	params.Set("slippageBps", fmt.Sprintf("%d", slippageBps))
	params.Set("swapMode", "ExactIn")
	params.Set("onlyDirectRoutes", "false")
	params.Set("asLegacyTransaction", "false")

	body, err := c.do(ctx, http.MethodGet, "/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var view quoteView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, invalidQuoteError("failed to decode quote response", err)
	}

	outAmount, err := parseUint(view.OutAmount)
	if err != nil || outAmount == 0 {
		return nil, invalidQuoteError(fmt.Sprintf("quote has no positive output amount (%q)", view.OutAmount), err)
	}
	inAmount, err := parseUint(view.InAmount)
	if err != nil {
		return nil, invalidQuoteError(fmt.Sprintf("quote has invalid input amount (%q)", view.InAmount), err)
	}

	impact := decimal.Zero
	if view.PriceImpactPct != "" {
		impact, err = decimal.NewFromString(view.PriceImpactPct)
		if err != nil {
			return nil, invalidQuoteError(fmt.Sprintf("quote has invalid price impact (%q)", view.PriceImpactPct), err)
		}
	}

	q := &Quote{
		InputMint:      view.InputMint,
		OutputMint:     view.OutputMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		PriceImpactPct: impact,
		SlippageBps:    view.SlippageBps,
		Payload:        json.RawMessage(body),
		ComputedAt:     time.Now(),
	}

	switch {
	case impact.GreaterThan(impactStrong):
		q.Warnings = append(q.Warnings, fmt.Sprintf("high price impact: %s%%. Consider using a smaller amount", impact.StringFixed(2)))
	case impact.GreaterThan(impactAdvisory):
		q.Warnings = append(q.Warnings, fmt.Sprintf("moderate price impact: %s%%. Larger amounts may get better rates", impact.StringFixed(2)))
	}

	c.log.Debug().
		Str("input_mint", inputMint).
		Str("output_mint", outputMint).
		Uint64("in_amount", inAmount).
		Uint64("out_amount", outAmount).
		Str("price_impact_pct", impact.String()).
		Msg("quote received")

	return q, nil
}

// SwapTransaction requests a ready-to-sign execution transaction bound to the
// executor address and the original quote payload. Returns the serialized
// transaction bytes. A rejected (stale) quote is surfaced as an error; the
// caller must re-quote.
func (c *Client) SwapTransaction(ctx context.Context, q *Quote, executorAddress string) ([]byte, error) {
	req := swapRequest{
		QuoteResponse:             q.Payload,
		UserPublicKey:             executorAddress,
		WrapAndUnwrapSol:          true,
		UseSharedAccounts:         true,
		PrioritizationFeeLamports: "auto",
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter: failed to marshal swap request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/swap", body)
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, invalidQuoteError("failed to decode swap response", err)
	}
	if resp.SwapTransaction == "" {
		return nil, invalidQuoteError("swap response contains no transaction", nil)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, invalidQuoteError("swap transaction is not valid base64", err)
	}
	return raw, nil
}

// do performs an HTTP call. Transport failures and 5xx responses are retried
// with bounded exponential backoff; 4xx responses are classified and never
// retried (they are semantic, not transient).
func (c *Client) do(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
		if err != nil {
			return backoff.Permanent(upstreamError(err))
		}
		req.Header.Set("Accept", "application/json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := c.httpClient.Do(req)
		if err != nil {
			return upstreamError(err)
		}
		defer func() { _ = res.Body.Close() }()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return upstreamError(err)
		}

		switch {
		case res.StatusCode >= 200 && res.StatusCode < 300:
			respBody = body
			return nil
		case res.StatusCode >= 500:
			return upstreamError(fmt.Errorf("status %d: %s", res.StatusCode, truncate(body)))
		default:
			return backoff.Permanent(classifyRejection(res.StatusCode, body))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, upstreamError(err)
	}
	return respBody, nil
}

// classifyRejection maps a 4xx body onto the gateway error taxonomy.
func classifyRejection(status int, body []byte) *APIError {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)
	detail := parsed.Error
	if detail == "" {
		detail = parsed.Message
	}
	if detail == "" {
		detail = truncate(body)
	}

	switch {
	case parsed.ErrorCode == "COULD_NOT_FIND_ANY_ROUTE",
		strings.Contains(detail, "Could not find any route"):
		return noRouteError(detail)
	case strings.Contains(detail, "Cannot compute other amount threshold"):
		return amountTooSmallError(detail)
	default:
		return &APIError{
			Class:   ErrInvalidQuote,
			Message: fmt.Sprintf("aggregator rejected the request (status %d): %s", status, detail),
			Suggestions: []string{
				"Verify the asset addresses are correct",
				"Try again with a larger amount",
			},
			Status: 400,
		}
	}
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
