// Package pricing classifies bookings into price bands and derives fees.
// Pure computation over explicit inputs; the orchestrator resolves the tier,
// resource flags and organisation config before calling in.
package pricing

import (
	"encoding/json"
	"time"

	"github.com/courtbook/courtbook/internal/hours"
)

type Band string

const (
	BandEarly      Band = "early"
	BandOffpeak    Band = "offpeak"
	BandPeak       Band = "peak"
	BandFloodlight Band = "floodlight"
)

// Config holds the org-configurable time band boundaries, HH:MM. Zero values
// fall back to the platform defaults; orgs may override any subset.
type Config struct {
	WeekdayEarlyEnd  string `json:"weekday_early_end"`
	WeekdayPeakStart string `json:"weekday_peak_start"`
	WeekendEarlyEnd  string `json:"weekend_early_end"`
}

const (
	defaultWeekdayEarlyEnd  = "10:00"
	defaultWeekdayPeakStart = "18:00"
	defaultWeekendEarlyEnd  = "09:00"
)

// ParseConfig reads band boundaries out of an organisation's config JSON.
// Unknown keys are ignored; a broken document yields the defaults.
func ParseConfig(orgConfig string) Config {
	var cfg Config
	if orgConfig != "" {
		_ = json.Unmarshal([]byte(orgConfig), &cfg)
	}
	return cfg
}

func (c Config) weekdayEarlyEnd() string {
	if c.WeekdayEarlyEnd != "" {
		return c.WeekdayEarlyEnd
	}
	return defaultWeekdayEarlyEnd
}

func (c Config) weekdayPeakStart() string {
	if c.WeekdayPeakStart != "" {
		return c.WeekdayPeakStart
	}
	return defaultWeekdayPeakStart
}

func (c Config) weekendEarlyEnd() string {
	if c.WeekendEarlyEnd != "" {
		return c.WeekendEarlyEnd
	}
	return defaultWeekendEarlyEnd
}

// Rates is a tier's per-band hourly rate table, pence per hour.
type Rates struct {
	EarlyPence      int64
	OffpeakPence    int64
	PeakPence       int64
	FloodlightPence int64
}

// DeterminePriceBand classifies a booking. The floodlight band applies when
// the court has floodlights and any part of the booking runs past that day's
// dusk (the non-floodlit closing time); it overrides every other band.
// Otherwise classification is by weekday/weekend and start time against the
// configured boundaries. Deterministic for identical inputs.
func DeterminePriceBand(hasFloodlights bool, date time.Time, startTime, endTime string, cfg Config) Band {
	if hasFloodlights {
		dusk := hours.ClosingTime(false, false, date)
		if endTime > dusk {
			return BandFloodlight
		}
	}

	isWeekend := date.Weekday() == time.Saturday || date.Weekday() == time.Sunday

	if isWeekend {
		if startTime < cfg.weekendEarlyEnd() {
			return BandEarly
		}
		return BandPeak
	}

	if startTime < cfg.weekdayEarlyEnd() {
		return BandEarly
	}
	if startTime >= cfg.weekdayPeakStart() {
		return BandPeak
	}
	return BandOffpeak
}

// CalculateBookingFee resolves the band and scales the tier's hourly rate
// linearly with duration. Integer arithmetic floors toward zero for durations
// that are not hour multiples; tiers only allow 60/120 minutes today, so the
// division is exact in practice.
func CalculateBookingFee(rates Rates, hasFloodlights bool, date time.Time, startTime string, durationMinutes int, cfg Config) (int64, Band) {
	endTime := hours.AddMinutes(startTime, durationMinutes)
	band := DeterminePriceBand(hasFloodlights, date, startTime, endTime, cfg)

	var perHour int64
	switch band {
	case BandEarly:
		perHour = rates.EarlyPence
	case BandOffpeak:
		perHour = rates.OffpeakPence
	case BandPeak:
		perHour = rates.PeakPence
	case BandFloodlight:
		perHour = rates.FloodlightPence
	}

	return perHour * int64(durationMinutes) / 60, band
}
