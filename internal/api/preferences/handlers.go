// Package preferences serves the stored booking-preference endpoints.
package preferences

import (
	"database/sql"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/api/apiutil"
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

type createRequest struct {
	OrganisationID     int64  `json:"organisation_id"`
	Priority           int    `json:"priority"`
	SiteID             *int64 `json:"site_id,omitempty"`
	ResourceID         *int64 `json:"resource_id,omitempty"`
	DayOfWeek          *int64 `json:"day_of_week,omitempty"`
	PreferredStartTime string `json:"preferred_start_time,omitempty"`
	DurationMinutes    int    `json:"duration_minutes,omitempty"`
}

type preferenceResponse struct {
	ID                 int64  `json:"id"`
	OrganisationID     int64  `json:"organisation_id"`
	Priority           int    `json:"priority"`
	SiteID             *int64 `json:"site_id,omitempty"`
	ResourceID         *int64 `json:"resource_id,omitempty"`
	DayOfWeek          *int64 `json:"day_of_week,omitempty"`
	PreferredStartTime string `json:"preferred_start_time,omitempty"`
	DurationMinutes    int    `json:"duration_minutes"`
}

func toResponse(p store.UserPreference) preferenceResponse {
	resp := preferenceResponse{
		ID:              p.ID,
		OrganisationID:  p.OrganisationID,
		Priority:        p.Priority,
		DurationMinutes: p.DurationMinutes,
	}
	if p.SiteID.Valid {
		resp.SiteID = &p.SiteID.Int64
	}
	if p.ResourceID.Valid {
		resp.ResourceID = &p.ResourceID.Int64
	}
	if p.DayOfWeek.Valid {
		resp.DayOfWeek = &p.DayOfWeek.Int64
	}
	if p.PreferredStartTime.Valid {
		resp.PreferredStartTime = p.PreferredStartTime.String
	}
	return resp
}

// POST /api/v1/preferences
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	user := api.RequireUser(w, r)
	if user == nil {
		return
	}

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrganisationID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "organisation_id must be greater than 0")
		return
	}
	if req.Priority <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "priority must be greater than 0")
		return
	}
	if req.DayOfWeek != nil && (*req.DayOfWeek < 0 || *req.DayOfWeek > 6) {
		apiutil.WriteError(w, http.StatusBadRequest, "day_of_week must be between 0 and 6")
		return
	}
	if req.PreferredStartTime != "" {
		if _, err := apiutil.ParseTimeField(req.PreferredStartTime, "preferred_start_time"); err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.DurationMinutes < 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "duration_minutes must be 0 or greater")
		return
	}

	params := store.CreatePreferenceParams{
		UserID:          user.ID,
		OrganisationID:  req.OrganisationID,
		Priority:        req.Priority,
		DurationMinutes: req.DurationMinutes,
	}
	if req.SiteID != nil {
		params.SiteID = sql.NullInt64{Int64: *req.SiteID, Valid: true}
	}
	if req.ResourceID != nil {
		params.ResourceID = sql.NullInt64{Int64: *req.ResourceID, Valid: true}
	}
	if req.DayOfWeek != nil {
		params.DayOfWeek = sql.NullInt64{Int64: *req.DayOfWeek, Valid: true}
	}
	if req.PreferredStartTime != "" {
		params.PreferredStartTime = sql.NullString{String: req.PreferredStartTime, Valid: true}
	}

	pref, err := database.Store.CreatePreference(r.Context(), params)
	if err != nil {
		if errors.Is(err, store.ErrDuplicatePriority) {
			apiutil.WriteError(w, http.StatusConflict, "priority already used for this organisation")
			return
		}
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create preference")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to create preference")
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, toResponse(pref))
}

// GET /api/v1/preferences?organisation_id=N
func HandleList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	user := api.RequireUser(w, r)
	if user == nil {
		return
	}

	orgID, err := apiutil.ParsePositiveInt64Field(r.URL.Query().Get("organisation_id"), "organisation_id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := database.Store.ListPreferences(r.Context(), user.ID, orgID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list preferences")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to list preferences")
		return
	}

	responses := make([]preferenceResponse, 0, len(list))
	for _, pref := range list {
		responses = append(responses, toResponse(pref))
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"preferences": responses})
}

// DELETE /api/v1/preferences/{id}
func HandleDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	user := api.RequireUser(w, r)
	if user == nil {
		return
	}

	prefID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := database.Store.DeletePreference(r.Context(), prefID, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "preference not found")
			return
		}
		logger.Error().Err(err).Int64("preference_id", prefID).Msg("Failed to delete preference")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to delete preference")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
