package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"packflow/internal/ledger"
	"packflow/internal/realtime"
	sagapkg "packflow/internal/saga"
)

type server struct {
	coordinator *sagapkg.Coordinator
	stock       *ledger.Ledger
	hub         *realtime.Hub
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

type orderRequest struct {
	Order sagapkg.Order `json:"order"`
	// Decoded over DefaultOptions so a partial object keeps the
	// documented defaults for the fields it omits.
	Options json.RawMessage `json:"options"`
}

type stockDelta struct {
	SKU   string `json:"sku"`
	Delta int    `json:"delta"`
}

type stockRequest struct {
	BatchID       string       `json:"batchId"`
	Deltas        []stockDelta `json:"deltas"`
	Reason        string       `json:"reason"`
	AllowNegative bool         `json:"allowNegative"`
}

type stockResponse struct {
	BatchID string      `json:"batchId"`
	Reason  string      `json:"reason,omitempty"`
	Changes []skuChange `json:"changes"`
}

type skuChange struct {
	SKU    string `json:"sku"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	SKUs    []string `json:"skus,omitempty"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/stock", s.handleStock)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "method_not_allowed", Message: "POST required"})
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_json", Message: err.Error()})
		return
	}

	opts := sagapkg.DefaultOptions()
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_json", Message: err.Error()})
			return
		}
		if opts.MaxPaymentAttempts < 1 {
			opts.MaxPaymentAttempts = sagapkg.DefaultOptions().MaxPaymentAttempts
		}
	}

	result := s.coordinator.Run(r.Context(), req.Order, opts)
	writeJSON(w, statusForResult(result), result)
}

func (s *server) handleStock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.applyStock(w, r)
	case http.MethodGet:
		s.readStock(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "method_not_allowed", Message: "POST or GET required"})
	}
}

func (s *server) applyStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_json", Message: err.Error()})
		return
	}

	deltas := make([]ledger.StockDelta, len(req.Deltas))
	for i, d := range req.Deltas {
		deltas[i] = ledger.StockDelta{SKU: d.SKU, Delta: d.Delta}
	}

	tx, err := s.stock.Apply(r.Context(), req.BatchID, deltas, ledger.Policy{
		AllowNegative: req.AllowNegative,
		ReasonTag:     req.Reason,
	})
	if err != nil {
		status, resp := classifyStockError(err)
		writeJSON(w, status, resp)
		return
	}

	changes := make([]skuChange, len(tx.Changes))
	for i, c := range tx.Changes {
		changes[i] = skuChange{SKU: c.SKU, Before: c.Before, After: c.After}
	}
	writeJSON(w, http.StatusOK, stockResponse{
		BatchID: tx.BatchID,
		Reason:  tx.Reason,
		Changes: changes,
	})
}

func (s *server) readStock(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("skus"))
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "missing_skus", Message: "skus query parameter required"})
		return
	}

	quantities, err := s.stock.Available(r.Context(), strings.Split(raw, ","))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Code: "stock_read_failed", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, quantities)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Register <- conn
}

func statusForResult(result sagapkg.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case sagapkg.CodeInvalidOrder:
		return http.StatusBadRequest
	case sagapkg.CodeInsufficientInventory, sagapkg.CodeIdempotencyConflict, sagapkg.CodeSagaInProgress:
		return http.StatusConflict
	case sagapkg.CodeFulfillmentFailed:
		return http.StatusBadGateway
	case sagapkg.CodeInternal:
		return http.StatusInternalServerError
	default:
		// Payment codes pass through from the payments package.
		return http.StatusPaymentRequired
	}
}

func classifyStockError(err error) (int, errorResponse) {
	var dup *ledger.DuplicateSKUError
	if errors.As(err, &dup) {
		return http.StatusBadRequest, errorResponse{Code: "duplicate_sku", Message: err.Error(), SKUs: []string{dup.SKU}}
	}
	var insufficient *ledger.InsufficientStockError
	if errors.As(err, &insufficient) {
		return http.StatusConflict, errorResponse{Code: "insufficient_stock", Message: err.Error(), SKUs: insufficient.SKUs()}
	}
	var write *ledger.StockWriteError
	if errors.As(err, &write) {
		return http.StatusBadGateway, errorResponse{Code: "stock_write_failed", Message: err.Error(), SKUs: []string{write.SKU}}
	}
	switch {
	case errors.Is(err, ledger.ErrMissingBatchID):
		return http.StatusBadRequest, errorResponse{Code: "missing_batch_id", Message: err.Error()}
	case errors.Is(err, ledger.ErrEmptyBatch):
		return http.StatusBadRequest, errorResponse{Code: "empty_batch", Message: err.Error()}
	case errors.Is(err, ledger.ErrMissingSKU):
		return http.StatusBadRequest, errorResponse{Code: "missing_sku", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
