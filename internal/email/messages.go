package email

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const sendTimeout = 5 * time.Second

// SendAsync fires a delivery in the background. Booking flows never block on
// email; failures are logged and dropped.
func SendAsync(sender Sender, recipient, subject, body string) {
	if sender == nil || recipient == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := sender.Send(ctx, recipient, subject, body); err != nil {
			log.Error().Err(err).Str("recipient", recipient).Str("subject", subject).Msg("Failed to send email")
		}
	}()
}

// BookingConfirmation builds the confirmation message for a new booking.
func BookingConfirmation(bookingDate, startTime, endTime string, amountPence int64) (subject, body string) {
	subject = fmt.Sprintf("Booking confirmed for %s", bookingDate)
	body = fmt.Sprintf(
		"Your court booking is confirmed.\n\nDate: %s\nTime: %s - %s\nFee: %s\n\nSee you on court!",
		bookingDate, startTime, endTime, formatPence(amountPence))
	return subject, body
}

// BookingCancellation builds the cancellation message, noting the credit-back.
func BookingCancellation(bookingDate, startTime string, amountPence int64) (subject, body string) {
	subject = fmt.Sprintf("Booking cancelled for %s", bookingDate)
	body = fmt.Sprintf(
		"Your booking on %s at %s has been cancelled.\n\n%s has been returned to your credit balance.",
		bookingDate, startTime, formatPence(amountPence))
	return subject, body
}

// PasswordReset builds the reset message around a time-limited token link.
func PasswordReset(resetURL string, ttl time.Duration) (subject, body string) {
	subject = "Reset your password"
	body = fmt.Sprintf(
		"A password reset was requested for your account.\n\nReset link (valid for %d minutes):\n%s\n\nIf you did not request this, ignore this email.",
		int(ttl.Minutes()), resetURL)
	return subject, body
}

func formatPence(pence int64) string {
	return fmt.Sprintf("£%d.%02d", pence/100, pence%100)
}
