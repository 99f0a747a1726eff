package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 3 * time.Minute

// RelayerClient talks to a running swap relay over its HTTP API.
type RelayerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRelayerClient creates a client for the relay at baseURL.
func NewRelayerClient(baseURL string) *RelayerClient {
	return &RelayerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Confirm blocks through swap execution and settlement, so the
		// client timeout has to outlast on-chain confirmation.
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SwapRequest is the body of POST /api/swap.
type SwapRequest struct {
	SourceAsset        string `json:"sourceAsset"`
	DestinationAsset   string `json:"destinationAsset"`
	Amount             string `json:"amount"`
	DestinationAddress string `json:"destinationAddress"`
	SlippageBps        int    `json:"slippageBps,omitempty"`
}

// ConfirmRequest is the body of POST /api/confirm.
type ConfirmRequest struct {
	DepositAddress     string          `json:"depositAddress"`
	Confirmation       bool            `json:"confirmation"`
	DestinationAddress string          `json:"destinationAddress,omitempty"`
	QuoteSnapshot      json.RawMessage `json:"quoteSnapshot,omitempty"`
}

// SwapSummary is the quote digest inside a swap response.
type SwapSummary struct {
	SourceAsset          string `json:"sourceAsset"`
	DestinationAsset     string `json:"destinationAsset"`
	InputAmount          uint64 `json:"inputAmount"`
	ExpectedOutputAmount uint64 `json:"expectedOutputAmount"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

// SwapData is the payload of a successful POST /api/swap.
type SwapData struct {
	DepositAddress     string          `json:"depositAddress"`
	DestinationAddress string          `json:"destinationAddress"`
	Swap               SwapSummary     `json:"swap"`
	Quote              json.RawMessage `json:"quote"`
	Instructions       []string        `json:"instructions"`
	ExpiresAt          time.Time       `json:"expiresAt"`
	Warnings           []string        `json:"warnings,omitempty"`
}

// ExplorerLinks points at the settled transactions on the explorer.
type ExplorerLinks struct {
	SwapTx     string `json:"swapTx,omitempty"`
	TransferTx string `json:"transferTx,omitempty"`
}

// ConfirmData is the payload of a completed confirmation.
type ConfirmData struct {
	SwapTx             string        `json:"swapTx"`
	TransferTx         string        `json:"transferTx"`
	DepositAddress     string        `json:"depositAddress"`
	DestinationAddress string        `json:"destinationAddress"`
	Message            string        `json:"message"`
	ExplorerLinks      ExplorerLinks `json:"explorerLinks"`
}

// ConfirmOutcome is the full POST /api/confirm response. Status is
// "completed", "cancelled", or "failed".
type ConfirmOutcome struct {
	Success        bool         `json:"success"`
	Status         string       `json:"status"`
	Data           *ConfirmData `json:"data,omitempty"`
	Message        string       `json:"message,omitempty"`
	Error          string       `json:"error,omitempty"`
	FailureStage   string       `json:"failureStage,omitempty"`
	WalletRetained bool         `json:"walletRetained,omitempty"`
	SwapTx         string       `json:"swapTx,omitempty"`
}

// StatusData is the payload of GET /api/swap/{depositAddress}.
type StatusData struct {
	ID             string          `json:"id"`
	DepositAddress string          `json:"depositAddress"`
	State          string          `json:"state"`
	FailureStage   string          `json:"failureStage,omitempty"`
	WalletRetained bool            `json:"walletRetained,omitempty"`
	Quote          json.RawMessage `json:"quote,omitempty"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Result         *StatusResult   `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// StatusResult is the terminal outcome attached to a status response.
type StatusResult struct {
	Status     string `json:"status"`
	SwapTx     string `json:"swapTransaction,omitempty"`
	TransferTx string `json:"transferTransaction,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// APIError is a non-2xx error response from the relay.
type APIError struct {
	StatusCode  int
	Message     string   `json:"error"`
	Detail      string   `json:"message,omitempty"`
	Details     []string `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, "; "))
	}
	return e.Message
}

// InitiateSwap requests a new swap intent and deposit address.
func (c *RelayerClient) InitiateSwap(req SwapRequest) (*SwapData, error) {
	body, err := c.post("/api/swap", req)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data SwapData `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("client: failed to decode swap response: %w", err)
	}
	return &resp.Data, nil
}

// Confirm approves or declines a pending intent. When approving, pass the
// quote payload returned by InitiateSwap untouched. Failed executions are
// returned as a ConfirmOutcome, not an error; the error return is for
// request-level rejections.
func (c *RelayerClient) Confirm(req ConfirmRequest) (*ConfirmOutcome, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("client: failed to marshal request: %w", err)
	}
	resp, err := c.httpClient.Post(c.baseURL+"/api/confirm", "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("client: request failed: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var outcome ConfirmOutcome
	if err := json.Unmarshal(body, &outcome); err == nil && outcome.Status != "" {
		return &outcome, nil
	}
	return nil, decodeError(resp.StatusCode, body)
}

// Status fetches the current state of an intent by deposit address.
func (c *RelayerClient) Status(depositAddress string) (*StatusData, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/swap/" + depositAddress)
	if err != nil {
		return nil, fmt.Errorf("client: request failed: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}
	var wrapped struct {
		Data StatusData `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("client: failed to decode status response: %w", err)
	}
	return &wrapped.Data, nil
}

// Health checks the relay's health endpoint.
func (c *RelayerClient) Health() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("client: relay unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: relay unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func (c *RelayerClient) post(path string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: failed to marshal request: %w", err)
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("client: request failed: %w", err)
	}
	respBody, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: failed to read response: %w", err)
	}
	return body, nil
}

func decodeError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("unexpected response (status %d)", statusCode)
	}
	return apiErr
}
