package hours

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestClosingTimeFloodlitAndIndoor(t *testing.T) {
	date := mustDate(t, "2026-12-14")
	if got := ClosingTime(true, false, date); got != "21:00" {
		t.Errorf("floodlit closing = %s, want 21:00", got)
	}
	if got := ClosingTime(false, true, date); got != "21:00" {
		t.Errorf("indoor closing = %s, want 21:00", got)
	}
}

func TestClosingTimeWinterSunset(t *testing.T) {
	// Mid-December in London: sunset shortly before 16:00, floored to 15:00.
	got := ClosingTime(false, false, mustDate(t, "2026-12-14"))
	if got != "15:00" {
		t.Errorf("winter closing = %s, want 15:00", got)
	}
}

func TestClosingTimeSummerClampedToCap(t *testing.T) {
	// Mid-June sunset is past 21:00 BST; the hard cap applies.
	got := ClosingTime(false, false, mustDate(t, "2026-06-17"))
	if got != "21:00" {
		t.Errorf("summer closing = %s, want 21:00", got)
	}
}

func TestClosingTimeStableAcrossWeek(t *testing.T) {
	// Monday through Sunday of one week share the Monday sunset.
	week := []string{
		"2026-03-16", "2026-03-17", "2026-03-18", "2026-03-19",
		"2026-03-20", "2026-03-21", "2026-03-22",
	}
	want := ClosingTime(false, false, mustDate(t, week[0]))
	for _, day := range week[1:] {
		if got := ClosingTime(false, false, mustDate(t, day)); got != want {
			t.Errorf("closing on %s = %s, want %s (same as Monday)", day, got, want)
		}
	}

	// The following Monday starts a new week and may differ; at minimum it
	// must still be a full hour within bounds.
	next := ClosingTime(false, false, mustDate(t, "2026-03-23"))
	if next < OpenTime || next > MaxCloseTime {
		t.Errorf("closing out of range: %s", next)
	}
}

func TestClosingTimeNeverBeforeOpen(t *testing.T) {
	for _, day := range []string{"2026-01-05", "2026-06-22", "2026-12-21"} {
		got := ClosingTime(false, false, mustDate(t, day))
		if got < OpenTime || got > MaxCloseTime {
			t.Errorf("closing on %s = %s, outside [%s, %s]", day, got, OpenTime, MaxCloseTime)
		}
		if got[3:] != "00" {
			t.Errorf("closing on %s = %s, not floored to the hour", day, got)
		}
	}
}

func TestGenerateSlotsGrid(t *testing.T) {
	date := mustDate(t, "2026-06-17")
	now := CombineDateTime(mustDate(t, "2026-06-01"), "12:00")

	slots := GenerateSlots(true, false, date, nil, now)
	if len(slots) != 14 {
		t.Fatalf("got %d slots, want 14 (07:00 to 21:00)", len(slots))
	}
	if slots[0].StartTime != "07:00" || slots[0].EndTime != "08:00" {
		t.Errorf("first slot = %s-%s", slots[0].StartTime, slots[0].EndTime)
	}
	last := slots[len(slots)-1]
	if last.StartTime != "20:00" || last.EndTime != "21:00" {
		t.Errorf("last slot = %s-%s", last.StartTime, last.EndTime)
	}
	for _, s := range slots {
		if !s.IsAvailable {
			t.Errorf("slot %s unexpectedly unavailable", s.StartTime)
		}
	}
}

func TestGenerateSlotsMarksBookedAndPast(t *testing.T) {
	date := mustDate(t, "2026-06-17")
	now := CombineDateTime(date, "09:30")
	booked := []Interval{{StartTime: "12:00", EndTime: "14:00"}}

	slots := GenerateSlots(true, false, date, booked, now)

	byStart := make(map[string]Slot, len(slots))
	for _, s := range slots {
		byStart[s.StartTime] = s
	}

	// 07:00, 08:00, 09:00 started at or before 09:30.
	for _, start := range []string{"07:00", "08:00", "09:00"} {
		if byStart[start].IsAvailable {
			t.Errorf("slot %s should be past", start)
		}
	}
	if !byStart["10:00"].IsAvailable {
		t.Errorf("slot 10:00 should be available")
	}
	for _, start := range []string{"12:00", "13:00"} {
		if byStart[start].IsAvailable {
			t.Errorf("slot %s overlaps a booking", start)
		}
	}
	if !byStart["11:00"].IsAvailable || !byStart["14:00"].IsAvailable {
		t.Errorf("slots adjacent to a booking must stay available")
	}
}

func TestGenerateSlotsRespectsSunsetClose(t *testing.T) {
	date := mustDate(t, "2026-12-14")
	now := CombineDateTime(mustDate(t, "2026-12-01"), "12:00")

	slots := GenerateSlots(false, false, date, nil, now)
	// 07:00 to the 15:00 winter close.
	if len(slots) != 8 {
		t.Fatalf("got %d slots, want 8", len(slots))
	}
	last := slots[len(slots)-1]
	if last.EndTime != "15:00" {
		t.Errorf("last slot ends %s, want 15:00", last.EndTime)
	}
}

func TestParseHHMM(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"07:30", 450, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"7:00", 0, true},
		{"07:60", 0, true},
		{"0700", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseHHMM(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHHMM(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHHMM(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseHHMM(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestAddMinutes(t *testing.T) {
	if got := AddMinutes("07:00", 90); got != "08:30" {
		t.Errorf("AddMinutes = %s, want 08:30", got)
	}
	if got := AddMinutes("23:00", 60); got != "24:00" {
		t.Errorf("AddMinutes = %s, want 24:00", got)
	}
}
