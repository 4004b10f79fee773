// Package bookings serves the booking lifecycle endpoints.
package bookings

import (
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/booking"
	"github.com/courtbook/courtbook/internal/store"
)

var (
	service     *booking.Service
	serviceOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service) {
	if svc == nil {
		return
	}
	serviceOnce.Do(func() {
		service = svc
	})
}

type createRequest struct {
	ResourceID      int64  `json:"resource_id"`
	BookingDate     string `json:"booking_date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type bookingResponse struct {
	ID              int64  `json:"id"`
	Reference       string `json:"reference"`
	ResourceID      int64  `json:"resource_id"`
	BookingDate     string `json:"booking_date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"payment_status"`
	AmountPence     int64  `json:"amount_pence"`
	PriceBand       string `json:"price_band,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"`
}

func toResponse(bkg store.Booking, clientSecret string) bookingResponse {
	resp := bookingResponse{
		ID:              bkg.ID,
		Reference:       bkg.Reference,
		ResourceID:      bkg.ResourceID,
		BookingDate:     bkg.BookingDate,
		StartTime:       bkg.StartTime,
		EndTime:         bkg.EndTime,
		DurationMinutes: bkg.DurationMinutes,
		Status:          bkg.Status,
		PaymentStatus:   bkg.PaymentStatus,
		AmountPence:     bkg.AmountPence,
		ClientSecret:    clientSecret,
	}
	if bkg.PriceBand.Valid {
		resp.PriceBand = bkg.PriceBand.String
	}
	return resp
}

type violationResponse struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// POST /api/v1/bookings
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
	if req.ResourceID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "resource_id must be greater than 0")
		return
	}
	if _, err := apiutil.ParseDateField(req.BookingDate, "booking_date"); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := apiutil.ParseTimeField(req.StartTime, "start_time"); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DurationMinutes <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "duration_minutes must be greater than 0")
		return
	}

	result, err := service.Create(r.Context(), user.ID, booking.CreateRequest{
		ResourceID:      req.ResourceID,
		BookingDate:     req.BookingDate,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		var validationErr *booking.ValidationError
		switch {
		case errors.As(err, &validationErr):
			violations := make([]violationResponse, 0, len(validationErr.Violations))
			for _, v := range validationErr.Violations {
				violations = append(violations, violationResponse{Rule: v.Rule, Message: v.Message})
			}
			apiutil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      "booking rejected",
				"violations": violations,
			})
		case errors.Is(err, store.ErrSlotTaken):
			apiutil.WriteError(w, http.StatusConflict, "slot already booked")
		case errors.Is(err, booking.ErrCourtNotFound):
			apiutil.WriteError(w, http.StatusNotFound, "court not found")
		case errors.Is(err, booking.ErrNotMember):
			apiutil.WriteError(w, http.StatusForbidden, "no active membership for this organisation")
		default:
			logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create booking")
			apiutil.WriteError(w, http.StatusInternalServerError, "failed to create booking")
		}
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, toResponse(result.Booking, result.ClientSecret))
}

// GET /api/v1/bookings
func HandleList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	user := api.RequireUser(w, r)
	if user == nil {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := apiutil.ParsePositiveInt64Field(raw, "limit")
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		limit = int(parsed)
	}

	list, err := service.ListForUser(r.Context(), user.ID, limit)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list bookings")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	responses := make([]bookingResponse, 0, len(list))
	for _, bkg := range list {
		responses = append(responses, toResponse(bkg, ""))
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"bookings": responses})
}

// POST /api/v1/bookings/{id}/cancel
func HandleCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	user := api.RequireUser(w, r)
	if user == nil {
		return
	}

	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cancelled, err := service.Cancel(r.Context(), user.ID, bookingID)
	if err != nil {
		var validationErr *booking.ValidationError
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			apiutil.WriteError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, booking.ErrNotCancellable):
			apiutil.WriteError(w, http.StatusConflict, "booking cannot be cancelled")
		case errors.As(err, &validationErr):
			violations := make([]violationResponse, 0, len(validationErr.Violations))
			for _, v := range validationErr.Violations {
				violations = append(violations, violationResponse{Rule: v.Rule, Message: v.Message})
			}
			apiutil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      "cancellation rejected",
				"violations": violations,
			})
		default:
			logger.Error().Err(err).Int64("booking_id", bookingID).Msg("Failed to cancel booking")
			apiutil.WriteError(w, http.StatusInternalServerError, "failed to cancel booking")
		}
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, toResponse(cancelled, ""))
}
