// Package credits serves the credit balance and transaction endpoints.
package credits

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/api/authz"
	"github.com/courtbook/courtbook/internal/credit"
	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/store"
)

var (
	database *db.DB
	dbOnce   sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(d *db.DB) {
	if d == nil {
		return
	}
	dbOnce.Do(func() {
		database = d
	})
}

// GET /api/v1/orgs/{id}/credits
func HandleBalance(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	user := api.RequireUser(w, r)
	if user == nil {
		return
	}
	orgID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := credit.Balance(r.Context(), database.Store, user.ID, orgID)
	if err != nil {
		logger.Error().Err(err).Int64("org_id", orgID).Msg("Failed to load credit balance")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to load balance")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"organisation_id": orgID,
		"balance_pence":   balance,
	})
}

type transactionResponse struct {
	ID                int64  `json:"id"`
	AmountPence       int64  `json:"amount_pence"`
	BalanceAfterPence int64  `json:"balance_after_pence"`
	TransactionType   string `json:"transaction_type"`
	BookingID         int64  `json:"booking_id,omitempty"`
	Description       string `json:"description"`
	CreatedAt         string `json:"created_at"`
}

// GET /api/v1/orgs/{id}/credits/transactions
func HandleTransactions(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	user := api.RequireUser(w, r)
	if user == nil {
		return
	}
	orgID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, parseErr := apiutil.ParsePositiveInt64Field(raw, "limit")
		if parseErr != nil {
			apiutil.WriteError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		limit = int(parsed)
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	list, err := database.Store.ListCreditTransactions(r.Context(), user.ID, orgID, limit)
	if err != nil {
		logger.Error().Err(err).Int64("org_id", orgID).Msg("Failed to list credit transactions")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	responses := make([]transactionResponse, 0, len(list))
	for _, txn := range list {
		resp := transactionResponse{
			ID:                txn.ID,
			AmountPence:       txn.AmountPence,
			BalanceAfterPence: txn.BalanceAfterPence,
			TransactionType:   txn.TransactionType,
			Description:       txn.Description,
			CreatedAt:         txn.CreatedAt,
		}
		if txn.BookingID.Valid {
			resp.BookingID = txn.BookingID.Int64
		}
		responses = append(responses, resp)
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": responses})
}

type grantRequest struct {
	UserID      int64  `json:"user_id"`
	AmountPence int64  `json:"amount_pence"`
	Description string `json:"description"`
}

// POST /api/v1/orgs/{id}/credits/grant
//
// Admins and treasurers top up a member's credit balance.
func HandleGrant(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if api.RequireUser(w, r) == nil {
		return
	}
	orgID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := authz.RequireOrgRole(r.Context(), database.Store, orgID, store.OrgRoleAdmin, store.OrgRoleTreasurer); err != nil {
		switch {
		case errors.Is(err, authz.ErrUnauthenticated):
			apiutil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, authz.ErrForbidden):
			apiutil.WriteError(w, http.StatusForbidden, "admin or treasurer role required")
		default:
			logger.Error().Err(err).Int64("org_id", orgID).Msg("Failed to authorize credit grant")
			apiutil.WriteError(w, http.StatusInternalServerError, "failed to authorize request")
		}
		return
	}

	var req grantRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "user_id must be greater than 0")
		return
	}
	if req.AmountPence <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "amount_pence must be greater than 0")
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Credit granted by organisation admin"
	}

	var txn store.CreditTransaction
	err = database.RunInTx(r.Context(), func(txdb *db.DB) error {
		var grantErr error
		txn, grantErr = credit.Grant(r.Context(), txdb.Store, req.UserID, orgID, req.AmountPence, description)
		return grantErr
	})
	if err != nil {
		if errors.Is(err, credit.ErrNoMembership) {
			apiutil.WriteError(w, http.StatusNotFound, "no active membership for that user")
			return
		}
		logger.Error().Err(err).Int64("org_id", orgID).Int64("user_id", req.UserID).Msg("Failed to grant credit")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to grant credit")
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, transactionResponse{
		ID:                txn.ID,
		AmountPence:       txn.AmountPence,
		BalanceAfterPence: txn.BalanceAfterPence,
		TransactionType:   txn.TransactionType,
		Description:       txn.Description,
		CreatedAt:         txn.CreatedAt,
	})
}
