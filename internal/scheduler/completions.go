package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/booking"
)

// RegisterCompletionJob sweeps confirmed bookings whose end time has passed
// into completed status.
func RegisterCompletionJob(svc *booking.Service) error {
	if svc == nil {
		return fmt.Errorf("completion job requires booking service")
	}

	jobName := "booking_completions"
	cronExpr := "*/30 * * * *"
	jobLogger := log.With().
		Str("component", "booking_completions_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		completed, err := svc.CompletePastBookings(ctx)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Failed to sweep past bookings")
			return
		}
		if completed > 0 {
			jobLogger.Info().Int64("completed", completed).Msg("Marked past bookings completed")
		}
	}, gocron.WithSingletonMode(gocron.LimitModeWait))
	if err != nil {
		return fmt.Errorf("add booking completion job: %w", err)
	}
	return nil
}
