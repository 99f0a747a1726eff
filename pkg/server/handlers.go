package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"swap-relay/pkg/jupiter"
	"swap-relay/pkg/swap"
)

const explorerTxURL = "https://solscan.io/tx/"

type swapRequest struct {
	SourceAsset        string `json:"sourceAsset"`
	DestinationAsset   string `json:"destinationAsset"`
	Amount             string `json:"amount"`
	DestinationAddress string `json:"destinationAddress"`
	SlippageBps        int    `json:"slippageBps,omitempty"`
}

type confirmRequest struct {
	DepositAddress     string          `json:"depositAddress"`
	Confirmation       bool            `json:"confirmation"`
	DestinationAddress string          `json:"destinationAddress,omitempty"`
	QuoteSnapshot      json.RawMessage `json:"quoteSnapshot,omitempty"`
}

type swapSummary struct {
	SourceAsset          string `json:"sourceAsset"`
	DestinationAsset     string `json:"destinationAsset"`
	InputAmount          uint64 `json:"inputAmount"`
	ExpectedOutputAmount uint64 `json:"expectedOutputAmount"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

type swapData struct {
	DepositAddress     string          `json:"depositAddress"`
	DestinationAddress string          `json:"destinationAddress"`
	Swap               swapSummary     `json:"swap"`
	Quote              json.RawMessage `json:"quote"`
	Instructions       []string        `json:"instructions"`
	ExpiresAt          time.Time       `json:"expiresAt"`
	Warnings           []string        `json:"warnings,omitempty"`
}

type swapResponse struct {
	Success bool     `json:"success"`
	Data    swapData `json:"data"`
}

type explorerLinks struct {
	SwapTx     string `json:"swapTx,omitempty"`
	TransferTx string `json:"transferTx,omitempty"`
}

type confirmData struct {
	SwapTx             string        `json:"swapTx"`
	TransferTx         string        `json:"transferTx"`
	DepositAddress     string        `json:"depositAddress"`
	DestinationAddress string        `json:"destinationAddress"`
	Message            string        `json:"message"`
	ExplorerLinks      explorerLinks `json:"explorerLinks"`
}

type confirmResponse struct {
	Success        bool         `json:"success"`
	Status         string       `json:"status"`
	Data           *confirmData `json:"data,omitempty"`
	Message        string       `json:"message,omitempty"`
	Error          string       `json:"error,omitempty"`
	FailureStage   string       `json:"failureStage,omitempty"`
	WalletRetained bool         `json:"walletRetained,omitempty"`
	SwapTx         string       `json:"swapTx,omitempty"`
}

type statusData struct {
	ID             string          `json:"id"`
	DepositAddress string          `json:"depositAddress"`
	State          string          `json:"state"`
	FailureStage   string          `json:"failureStage,omitempty"`
	WalletRetained bool            `json:"walletRetained,omitempty"`
	Quote          json.RawMessage `json:"quote,omitempty"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Result         *swap.Result    `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type statusResponse struct {
	Success bool       `json:"success"`
	Data    statusData `json:"data"`
}

type errorResponse struct {
	Success     bool     `json:"success"`
	Error       string   `json:"error"`
	Message     string   `json:"message,omitempty"`
	Details     []string `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	intent, err := s.orchestrator.Initiate(r.Context(), swap.InitiateRequest{
		SourceMint:         req.SourceAsset,
		DestinationMint:    req.DestinationAsset,
		Amount:             req.Amount,
		DestinationAddress: req.DestinationAddress,
		SlippageBps:        req.SlippageBps,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.Initiated.Inc()

	q := intent.Quote
	writeJSON(w, http.StatusOK, swapResponse{
		Success: true,
		Data: swapData{
			DepositAddress:     intent.DepositAddress,
			DestinationAddress: intent.DestinationAddress,
			Swap: swapSummary{
				SourceAsset:          intent.SourceMint,
				DestinationAsset:     intent.DestinationMint,
				InputAmount:          q.InAmount,
				ExpectedOutputAmount: q.OutAmount,
				SlippageBps:          q.SlippageBps,
				PriceImpactPct:       q.PriceImpactPct.String(),
			},
			Quote: q.Payload,
			Instructions: []string{
				fmt.Sprintf("Send %d of %s to the deposit address %s", q.InAmount, intent.SourceMint, intent.DepositAddress),
				"Once the deposit lands, POST /api/confirm with confirmation=true and the quote you received",
				fmt.Sprintf("The quote expires at %s; after that you must request a new swap", q.ComputedAt.Add(s.quoteTTL).UTC().Format(time.RFC3339)),
			},
			ExpiresAt: q.ComputedAt.Add(s.quoteTTL),
			Warnings:  q.Warnings,
		},
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.DepositAddress == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "depositAddress is required"})
		return
	}

	intent, err := s.orchestrator.Confirm(r.Context(), swap.ConfirmRequest{
		DepositAddress:     req.DepositAddress,
		Confirmed:          req.Confirmation,
		DestinationAddress: req.DestinationAddress,
		QuoteSnapshot:      req.QuoteSnapshot,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	if intent.WalletRetained {
		s.metrics.WalletsRetained.Inc()
	}

	res := intent.Result
	switch intent.State {
	case swap.StateSettled:
		s.metrics.Settled.Inc()
		writeJSON(w, http.StatusOK, confirmResponse{
			Success: true,
			Status:  "completed",
			Data: &confirmData{
				SwapTx:             res.SwapTx,
				TransferTx:         res.TransferTx,
				DepositAddress:     intent.DepositAddress,
				DestinationAddress: intent.DestinationAddress,
				Message:            res.Message,
				ExplorerLinks: explorerLinks{
					SwapTx:     explorerTxURL + res.SwapTx,
					TransferTx: explorerTxURL + res.TransferTx,
				},
			},
		})
	case swap.StateCancelled:
		s.metrics.Cancelled.Inc()
		writeJSON(w, http.StatusOK, confirmResponse{
			Success: false,
			Status:  "cancelled",
			Message: res.Message,
		})
	case swap.StateFailed:
		s.metrics.Failed.WithLabelValues(string(intent.FailureStage)).Inc()
		writeJSON(w, http.StatusInternalServerError, confirmResponse{
			Success:        false,
			Status:         "failed",
			Error:          res.Err,
			Message:        res.Message,
			FailureStage:   string(intent.FailureStage),
			WalletRetained: intent.WalletRetained,
			SwapTx:         res.SwapTx,
		})
	default:
		// Confirm always lands on a terminal state; anything else is a bug.
		s.log.Error().Str("state", string(intent.State)).Msg("confirm ended in a non-terminal state")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	depositAddress := chi.URLParam(r, "depositAddress")
	intent, err := s.orchestrator.Get(depositAddress)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data := statusData{
		ID:             intent.ID,
		DepositAddress: intent.DepositAddress,
		State:          string(intent.State),
		FailureStage:   string(intent.FailureStage),
		WalletRetained: intent.WalletRetained,
		Result:         intent.Result,
		CreatedAt:      intent.CreatedAt,
		UpdatedAt:      intent.UpdatedAt,
	}
	if q := intent.Quote; q != nil {
		data.Quote = q.Payload
		data.Warnings = q.Warnings
		expiresAt := q.ComputedAt.Add(s.quoteTTL)
		data.ExpiresAt = &expiresAt
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Data: data})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps domain errors onto HTTP responses. Request-level problems
// are 4xx; only aggregator outages surface as 502.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var vErr *swap.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Details: vErr.Problems})
		return
	}

	var apiErr *jupiter.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{Error: apiErr.Message, Suggestions: apiErr.Suggestions})
		return
	}

	switch {
	case errors.Is(err, swap.ErrIntentNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no swap found for this deposit address"})
	case errors.Is(err, swap.ErrQuoteExpired):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:       "quote has expired",
			Suggestions: []string{"Request a new swap to get a fresh quote"},
		})
	case errors.Is(err, swap.ErrQuoteMismatch):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:       "quote snapshot does not match the original quote",
			Suggestions: []string{"Confirm with the quote returned by the swap request, unmodified"},
		})
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
