// Package availability serves the slot grid for a court on a date.
package availability

import (
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/booking"
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

// GET /api/v1/availability?resource_id=N&date=YYYY-MM-DD
//
// Open to unauthenticated callers so prospective members can browse courts.
func HandleAvailability(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	resourceID, err := apiutil.ParsePositiveInt64Field(r.URL.Query().Get("resource_id"), "resource_id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := apiutil.ParseDateField(r.URL.Query().Get("date"), "date")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := service.Availability(r.Context(), resourceID, date)
	if err != nil {
		if errors.Is(err, booking.ErrCourtNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "court not found")
			return
		}
		logger.Error().Err(err).Int64("resource_id", resourceID).Str("date", date).Msg("Failed to generate availability")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"resource_id": resourceID,
		"date":        date,
		"slots":       slots,
	})
}
