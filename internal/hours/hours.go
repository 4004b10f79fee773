// Package hours computes daily opening hours and bookable slots for courts.
// Pure computation: no database access, no clocks of its own. Sunset times for
// non-floodlit courts come from astronomical calculation at a fixed venue
// point; the difference across a ~4 km borough is well under a minute.
package hours

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

const (
	OpenTime     = "07:00" // daily open
	MaxCloseTime = "21:00" // hard cap: floodlit close and non-floodlit ceiling
	SlotMinutes  = 60
)

// Centroid of the borough the sites sit in.
const (
	venueLatitude  = 51.545
	venueLongitude = -0.056
)

var venueLocation = loadVenueLocation()

func loadVenueLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Location returns the venue's civil time zone. All wall-clock comparisons in
// the booking core happen in this zone.
func Location() *time.Location {
	return venueLocation
}

// Slot is one bookable unit of the daily grid.
type Slot struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

// Interval is a half-open [start, end) span of HH:MM wall-clock times.
type Interval struct {
	StartTime string
	EndTime   string
}

// ClosingTime returns the HH:MM closing time for a court on the given date.
//
// Floodlit or indoor courts always close at 21:00. Non-floodlit outdoor
// courts close at sunset on the Monday of the same ISO week, floored to the
// hour and clamped into [07:00, 21:00]. Using the week's Monday keeps the
// closing time constant across one displayed week while still tracking the
// seasons; flooring avoids claiming light past actual dusk.
func ClosingTime(hasFloodlights, isIndoor bool, date time.Time) string {
	if hasFloodlights || isIndoor {
		return MaxCloseTime
	}

	monday := date.AddDate(0, 0, -((int(date.Weekday()) + 6) % 7))

	_, set := sunrise.SunriseSunset(
		venueLatitude, venueLongitude,
		monday.Year(), monday.Month(), monday.Day(),
	)
	floored := fmt.Sprintf("%02d:00", set.In(venueLocation).Hour())

	// Zero-padded HH:MM compares correctly as a string.
	if floored > MaxCloseTime {
		return MaxCloseTime
	}
	if floored < OpenTime {
		return OpenTime
	}
	return floored
}

// GenerateSlots produces the full 60-minute slot grid for a court on a date.
// A slot is unavailable if its start is not strictly after now (in the venue
// zone) or if it half-open-overlaps any booked interval. The result is
// stateless and must be regenerated per request: it depends on now.
func GenerateSlots(hasFloodlights, isIndoor bool, date time.Time, booked []Interval, now time.Time) []Slot {
	close := ClosingTime(hasFloodlights, isIndoor, date)
	now = now.In(venueLocation)

	var slots []Slot
	for start := OpenTime; AddMinutes(start, SlotMinutes) <= close; start = AddMinutes(start, SlotMinutes) {
		end := AddMinutes(start, SlotMinutes)

		slotStart := CombineDateTime(date, start)
		isPast := !slotStart.After(now)

		hasConflict := false
		for _, iv := range booked {
			if iv.StartTime < end && iv.EndTime > start {
				hasConflict = true
				break
			}
		}

		slots = append(slots, Slot{
			StartTime:   start,
			EndTime:     end,
			IsAvailable: !isPast && !hasConflict,
		})
	}
	return slots
}

// ParseDate parses a YYYY-MM-DD date in the venue zone.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, venueLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// ParseHHMM validates an HH:MM wall-clock time and returns minutes since
// midnight.
func ParseHHMM(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return h*60 + m, nil
}

// AddMinutes adds minutes to an HH:MM time, staying within one day. The
// booking grid never crosses midnight so 24:00 is the effective ceiling.
func AddMinutes(hhmm string, minutes int) string {
	total, err := ParseHHMM(hhmm)
	if err != nil {
		return hhmm
	}
	total += minutes
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// CombineDateTime combines a date with an HH:MM time in the venue zone.
func CombineDateTime(date time.Time, hhmm string) time.Time {
	minutes, err := ParseHHMM(hhmm)
	if err != nil {
		minutes = 0
	}
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, venueLocation)
}
