// Package orgs serves organisation directory and admin endpoints.
package orgs

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/api/authz"
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

type orgResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// GET /api/v1/orgs
func HandleListOrgs(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	list, err := database.Store.ListOrganisations(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list organisations")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to list organisations")
		return
	}

	responses := make([]orgResponse, 0, len(list))
	for _, org := range list {
		responses = append(responses, orgResponse{ID: org.ID, Name: org.Name, Slug: org.Slug})
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"organisations": responses})
}

type siteResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// GET /api/v1/orgs/{id}/sites
func HandleListSites(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	orgID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := database.Store.ListSites(r.Context(), orgID)
	if err != nil {
		logger.Error().Err(err).Int64("org_id", orgID).Msg("Failed to list sites")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}

	responses := make([]siteResponse, 0, len(list))
	for _, site := range list {
		responses = append(responses, siteResponse{ID: site.ID, Name: site.Name, Slug: site.Slug})
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"sites": responses})
}

type resourceResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	ResourceType   string `json:"resource_type"`
	Surface        string `json:"surface,omitempty"`
	IsIndoor       bool   `json:"is_indoor"`
	HasFloodlights bool   `json:"has_floodlights"`
}

// GET /api/v1/sites/{id}/resources
func HandleListResources(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	siteID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := database.Store.ListResources(r.Context(), siteID)
	if err != nil {
		logger.Error().Err(err).Int64("site_id", siteID).Msg("Failed to list resources")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to list resources")
		return
	}

	responses := make([]resourceResponse, 0, len(list))
	for _, res := range list {
		resp := resourceResponse{
			ID:             res.ID,
			Name:           res.Name,
			Slug:           res.Slug,
			ResourceType:   res.ResourceType,
			IsIndoor:       res.IsIndoor,
			HasFloodlights: res.HasFloodlights,
		}
		if res.Surface.Valid {
			resp.Surface = res.Surface.String
		}
		responses = append(responses, resp)
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"resources": responses})
}

func requireAdmin(w http.ResponseWriter, r *http.Request, orgID int64) bool {
	logger := log.Ctx(r.Context())
	if err := authz.RequireOrgRole(r.Context(), database.Store, orgID, store.OrgRoleAdmin); err != nil {
		switch {
		case errors.Is(err, authz.ErrUnauthenticated):
			apiutil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, authz.ErrForbidden):
			apiutil.WriteError(w, http.StatusForbidden, "admin role required")
		default:
			logger.Error().Err(err).Int64("org_id", orgID).Msg("Failed to authorize admin request")
			apiutil.WriteError(w, http.StatusInternalServerError, "failed to authorize request")
		}
		return false
	}
	return true
}

type createTierRequest struct {
	Name                      string `json:"name"`
	Slug                      string `json:"slug"`
	AdvanceBookingDays        int    `json:"advance_booking_days"`
	MaxConcurrentBookings     int    `json:"max_concurrent_bookings"`
	MaxDailyMinutes           int    `json:"max_daily_minutes"`
	CancellationDeadlineHours int    `json:"cancellation_deadline_hours"`
	SlotDurationsMinutes      []int  `json:"slot_durations_minutes"`
	BookingWindowTime         string `json:"booking_window_time"`
	AnnualFeePence            int64  `json:"annual_fee_pence"`
	EarlyBookingFeePence      int64  `json:"early_booking_fee_pence"`
	OffpeakBookingFeePence    int64  `json:"offpeak_booking_fee_pence"`
	PeakBookingFeePence       int64  `json:"peak_booking_fee_pence"`
	FloodlightBookingFeePence int64  `json:"floodlight_booking_fee_pence"`
}

// POST /api/v1/orgs/{id}/tiers
func HandleCreateTier(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if api.RequireUser(w, r) == nil {
		return
	}
	orgID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !requireAdmin(w, r, orgID) {
		return
	}

	var req createTierRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Slug) == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "name and slug are required")
		return
	}
	if req.AdvanceBookingDays <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "advance_booking_days must be greater than 0")
		return
	}
	if len(req.SlotDurationsMinutes) == 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "slot_durations_minutes must not be empty")
		return
	}
	for _, d := range req.SlotDurationsMinutes {
		if d <= 0 {
			apiutil.WriteError(w, http.StatusBadRequest, "slot_durations_minutes must all be greater than 0")
			return
		}
	}
	windowTime := req.BookingWindowTime
	if windowTime == "" {
		windowTime = "00:00"
	} else if _, err := apiutil.ParseTimeField(windowTime, "booking_window_time"); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tier, err := database.Store.CreateMembershipTier(r.Context(), store.CreateMembershipTierParams{
		OrganisationID:            orgID,
		Name:                      strings.TrimSpace(req.Name),
		Slug:                      strings.TrimSpace(req.Slug),
		AdvanceBookingDays:        req.AdvanceBookingDays,
		MaxConcurrentBookings:     req.MaxConcurrentBookings,
		MaxDailyMinutes:           req.MaxDailyMinutes,
		CancellationDeadlineHours: req.CancellationDeadlineHours,
		SlotDurationsMinutes:      store.EncodeIntList(req.SlotDurationsMinutes),
		BookingWindowTime:         windowTime,
		AnnualFeePence:            req.AnnualFeePence,
		EarlyBookingFeePence:      req.EarlyBookingFeePence,
		OffpeakBookingFeePence:    req.OffpeakBookingFeePence,
		PeakBookingFeePence:       req.PeakBookingFeePence,
		FloodlightBookingFeePence: req.FloodlightBookingFeePence,
	})
	if err != nil {
		logger.Error().Err(err).Int64("org_id", orgID).Msg("Failed to create membership tier")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to create tier")
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":   tier.ID,
		"name": tier.Name,
		"slug": tier.Slug,
	})
}

type createMembershipRequest struct {
	UserID int64  `json:"user_id"`
	TierID int64  `json:"tier_id"`
	Role   string `json:"role,omitempty"`
}

// POST /api/v1/orgs/{id}/memberships
func HandleCreateMembership(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if api.RequireUser(w, r) == nil {
		return
	}
	orgID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !requireAdmin(w, r, orgID) {
		return
	}

	var req createMembershipRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 || req.TierID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "user_id and tier_id must be greater than 0")
		return
	}
	switch req.Role {
	case "", store.OrgRoleMember, store.OrgRoleCoach, store.OrgRoleTreasurer, store.OrgRoleAdmin:
	default:
		apiutil.WriteError(w, http.StatusBadRequest, "role must be member, coach, treasurer or admin")
		return
	}

	tier, err := database.Store.GetMembershipTier(r.Context(), req.TierID)
	if err != nil || tier.OrganisationID != orgID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Error().Err(err).Int64("tier_id", req.TierID).Msg("Failed to load tier")
			apiutil.WriteError(w, http.StatusInternalServerError, "failed to create membership")
			return
		}
		apiutil.WriteError(w, http.StatusNotFound, "tier not found in this organisation")
		return
	}

	membership, err := database.Store.CreateMembership(r.Context(), store.CreateMembershipParams{
		UserID:         req.UserID,
		OrganisationID: orgID,
		TierID:         req.TierID,
		Role:           req.Role,
	})
	if err != nil {
		logger.Error().Err(err).Int64("org_id", orgID).Int64("user_id", req.UserID).Msg("Failed to create membership")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to create membership")
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":                   membership.ID,
		"user_id":              membership.UserID,
		"organisation_id":      membership.OrganisationID,
		"tier_id":              membership.TierID,
		"role":                 membership.Role,
		"credit_balance_pence": membership.CreditBalancePence,
	})
}
