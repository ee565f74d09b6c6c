/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write the HTTP response. Ledger errors keep their caller-visible
 * messages (missing balance, missing recipient, insufficient funds, failed
 * integrity check) and map to 400; anything unexpected maps to 500.
 *
 * @dependencies
 * - encoding/json, log, net/http, strconv: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/shopspring/decimal: Fixed-point amounts.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/serchip/wallet-service/internal/app"
	"github.com/serchip/wallet-service/internal/domain"
	"github.com/serchip/wallet-service/internal/store"
	"github.com/shopspring/decimal"
)

// LedgerService is the application surface the handlers depend on.
type LedgerService interface {
	CreateAccount(ctx context.Context, username string) (*domain.BalanceAccount, error)
	GetBalance(ctx context.Context, balanceID int64) (*domain.BalanceAccount, error)
	Credit(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error)
	Transfer(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error)
	ListOperations(ctx context.Context, balanceID int64, q domain.OperationQuery) (*domain.OperationPage, error)
}

// BalanceHandlers holds the application service that handlers will use.
type BalanceHandlers struct {
	service LedgerService
}

// NewBalanceHandlers creates a new instance of BalanceHandlers.
func NewBalanceHandlers(service LedgerService) *BalanceHandlers {
	return &BalanceHandlers{service: service}
}

type createBalancePayload struct {
	Username string `json:"username"`
}

type addBalancePayload struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferBalancePayload struct {
	ToBalance int64           `json:"to_balance"`
	Amount    decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type addBalanceResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Total    string `json:"total"`
	Added    string `json:"added"`
	Currency string `json:"currency"`
}

type transferBalanceResponse struct {
	ID               int64  `json:"id"`
	RecipientBalance int64  `json:"recipient_balance"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
}

// operationItemResponse fixes the wire shape of one ledger row. Amount is
// rendered with exactly two decimal places, matching the balance snapshots.
type operationItemResponse struct {
	ID             int64     `json:"id"`
	Created        time.Time `json:"created"`
	OperationType  string    `json:"operation_type"`
	Amount         string    `json:"amount"`
	OwnerBalanceID *int64    `json:"owner_balance_id"`
	MoreBalanceID  *int64    `json:"more_balance_id"`
}

type operationPageResponse struct {
	Items      []operationItemResponse `json:"items"`
	TotalCount int64                   `json:"totalCount"`
}

func buildOperationPageResponse(page *domain.OperationPage) operationPageResponse {
	resp := operationPageResponse{
		Items:      make([]operationItemResponse, 0, len(page.Items)),
		TotalCount: page.TotalCount,
	}
	for _, op := range page.Items {
		resp.Items = append(resp.Items, operationItemResponse{
			ID:             op.ID,
			Created:        op.Created,
			OperationType:  string(op.OperationType),
			Amount:         op.Amount.StringFixed(2),
			OwnerBalanceID: op.OwnerBalanceID,
			MoreBalanceID:  op.MoreBalanceID,
		})
	}
	return resp
}

func buildBalanceResponse(acct *domain.BalanceAccount) balanceResponse {
	return balanceResponse{
		ID:       acct.ID,
		Username: acct.Username,
		IsActive: acct.IsActive,
		Amount:   acct.Amount.StringFixed(2),
		Currency: string(acct.Currency),
	}
}

// CreateBalanceHandler handles POST /v1/auth/ requests: it creates a user
// with a zero balance, or returns the existing balance for the username.
func (h *BalanceHandlers) CreateBalanceHandler(w http.ResponseWriter, r *http.Request) {
	var payload createBalancePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	acct, err := h.service.CreateAccount(r.Context(), payload.Username)
	if err != nil {
		if errors.Is(err, app.ErrEmptyUsername) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=create_balance outcome=failed username=%q err=%v", payload.Username, err)
		h.writeError(w, http.StatusInternalServerError, "Could not create balance.")
		return
	}

	h.writeJSON(w, http.StatusOK, buildBalanceResponse(acct))
}

// GetBalanceHandler handles GET /v1/balances/{id} requests.
func (h *BalanceHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	balanceID, err := parseBalanceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid balance ID")
		return
	}

	acct, err := h.service.GetBalance(r.Context(), balanceID)
	if err != nil {
		if errors.Is(err, store.ErrBalanceNotFound) {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Not found balance id: %d", balanceID))
			return
		}
		log.Printf("level=error component=api endpoint=get_balance outcome=failed balance_id=%d err=%v", balanceID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve balance.")
		return
	}

	h.writeJSON(w, http.StatusOK, buildBalanceResponse(acct))
}

// AddBalanceHandler handles PUT /v1/balances/{id} requests: a credit from
// the system reserve onto the target balance.
func (h *BalanceHandlers) AddBalanceHandler(w http.ResponseWriter, r *http.Request) {
	balanceID, err := parseBalanceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid balance ID")
		return
	}

	var payload addBalancePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	acct, err := h.service.Credit(r.Context(), balanceID, payload.Amount)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrBalanceNotFound):
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Not found balance id: %d", balanceID))
		case errors.Is(err, store.ErrIntegrityViolation):
			log.Printf("level=error component=api endpoint=add_balance outcome=integrity_violation balance_id=%d", balanceID)
			h.writeError(w, http.StatusBadRequest, "Error when checking operations")
		default:
			log.Printf("level=error component=api endpoint=add_balance outcome=failed balance_id=%d err=%v", balanceID, err)
			h.writeError(w, http.StatusInternalServerError, "Could not credit balance.")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, addBalanceResponse{
		ID:       acct.ID,
		Username: acct.Username,
		Total:    acct.Amount.StringFixed(2),
		Added:    payload.Amount.StringFixed(2),
		Currency: string(acct.Currency),
	})
}

// TransferBalanceHandler handles PUT /v1/balances/transfer/{id} requests:
// a transfer from the balance in the path to the balance in the payload.
func (h *BalanceHandlers) TransferBalanceHandler(w http.ResponseWriter, r *http.Request) {
	balanceID, err := parseBalanceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid balance ID")
		return
	}

	var payload transferBalancePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	acct, err := h.service.Transfer(r.Context(), balanceID, payload.ToBalance, payload.Amount)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrBalanceNotFound):
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Not found balance id: %d", balanceID))
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Insufficient funds on the balance: %d", balanceID))
		case errors.Is(err, store.ErrRecipientNotFound):
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Not found recipient's balance id: %d", payload.ToBalance))
		case errors.Is(err, store.ErrIntegrityViolation):
			log.Printf("level=error component=api endpoint=transfer_balance outcome=integrity_violation balance_id=%d to_balance=%d", balanceID, payload.ToBalance)
			h.writeError(w, http.StatusBadRequest, "Error when checking operations")
		default:
			log.Printf("level=error component=api endpoint=transfer_balance outcome=failed balance_id=%d to_balance=%d err=%v", balanceID, payload.ToBalance, err)
			h.writeError(w, http.StatusInternalServerError, "Could not transfer funds.")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, transferBalanceResponse{
		ID:               acct.ID,
		RecipientBalance: payload.ToBalance,
		Amount:           payload.Amount.StringFixed(2),
		Currency:         string(acct.Currency),
	})
}

// ListOperationsHandler handles GET /v1/balances/operations/{id} requests:
// the paginated, filterable, sortable ledger of one balance.
func (h *BalanceHandlers) ListOperationsHandler(w http.ResponseWriter, r *http.Request) {
	balanceID, err := parseBalanceID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid balance ID")
		return
	}

	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 20)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := parseOptionalPositiveInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	query, err := parseOperationQuery(r, limit, offset)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.ListOperations(r.Context(), balanceID, query)
	if err != nil {
		var validationErr *store.ValidationError
		switch {
		case errors.Is(err, store.ErrBalanceNotFound):
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Not found balance id: %d", balanceID))
		case errors.As(err, &validationErr):
			h.writeError(w, http.StatusBadRequest, validationErr.Error())
		default:
			log.Printf("level=error component=api endpoint=list_operations outcome=failed balance_id=%d err=%v", balanceID, err)
			h.writeError(w, http.StatusInternalServerError, "Could not retrieve operations.")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, buildOperationPageResponse(page))
}

const (
	serviceName    = "wallet-service"
	serviceVersion = "1.0.0"
)

// ServiceInfoHandler handles GET / requests with the service self-description.
func (h *BalanceHandlers) ServiceInfoHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"name":    serviceName,
		"version": serviceVersion,
	})
}

func parseBalanceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("value must be a non-negative integer")
	}
	return n, nil
}

// parseOperationQuery assembles the filter triples and sort pairs from the
// repeated query parameters. field/value/op and sort_by/sort_order are
// positionally aligned; a value or direction without its counterpart is a
// caller error.
func parseOperationQuery(r *http.Request, limit, offset int) (domain.OperationQuery, error) {
	values := r.URL.Query()
	q := domain.OperationQuery{Limit: limit, Offset: offset}

	fields := values["field"]
	filterValues := values["value"]
	ops := values["op"]
	if len(fields) > 0 {
		if len(filterValues) != len(fields) || len(ops) != len(fields) {
			return q, fmt.Errorf("field, value and op parameters must be aligned")
		}
		for i, field := range fields {
			q.Filters = append(q.Filters, domain.OperationFilter{
				Field: field,
				Value: filterValues[i],
				Op:    ops[i],
			})
		}
	}

	sortBy := values["sort_by"]
	sortOrder := values["sort_order"]
	if len(sortBy) > 0 {
		if len(sortOrder) != len(sortBy) {
			return q, fmt.Errorf("sort_by and sort_order parameters must be aligned")
		}
		for i, field := range sortBy {
			q.Sorts = append(q.Sorts, domain.OperationSort{
				Field:     field,
				Direction: sortOrder[i],
			})
		}
	}

	return q, nil
}

// writeJSON is a helper for writing JSON responses.
func (h *BalanceHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BalanceHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
