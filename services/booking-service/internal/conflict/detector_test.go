package conflict

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

var (
	monday = clock.MustDate("2025-03-10")
	now    = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
)

func rng(start, end string) clock.Range {
	return clock.Range{Start: clock.MustTime(start), End: clock.MustTime(end)}
}

func booked(start, end string) model.LedgerSlot {
	r := rng(start, end)
	return model.LedgerSlot{Start: r.Start, End: r.End, Duration: r.Minutes()}
}

func workingDay(windows ...clock.Range) availability.Resolution {
	return availability.Resolution{
		Date: monday, Configured: true, IsWorking: true,
		Source: availability.SourceDay, Windows: windows,
	}
}

func TestValidateScenarios(t *testing.T) {
	d := NewDetector(DefaultPolicy())
	day := workingDay(rng("09:00", "12:00"))

	cases := []struct {
		name   string
		c      Candidate
		res    availability.Resolution
		booked []model.LedgerSlot
		want   Reason
	}{
		{"clean booking", Candidate{monday, clock.MustTime("09:00"), 60}, day, nil, ""},
		{"overlap", Candidate{monday, clock.MustTime("10:00"), 30}, day, []model.LedgerSlot{booked("10:15", "10:45")}, SlotAlreadyBooked},
		{"touching is fine", Candidate{monday, clock.MustTime("10:00"), 15}, day, []model.LedgerSlot{booked("10:15", "10:45")}, ""},
		{"outside hours", Candidate{monday, clock.MustTime("12:00"), 30}, day, nil, OutsideWorkingHours},
		{"in the break", Candidate{monday, clock.MustTime("13:00"), 30}, workingDay(rng("09:00", "12:00"), rng("14:00", "18:00")), nil, OutsideWorkingHours},
		{"day off", Candidate{monday, clock.MustTime("09:00"), 60}, availability.Resolution{Date: monday, Configured: true}, nil, NonWorkingDay},
		{"past", Candidate{monday, clock.MustTime("07:30"), 30}, day, nil, SlotInPast},
		{"exceeds day", Candidate{monday, clock.MustTime("23:30"), 60}, day, nil, DurationExceedsDayLimit},
		{"too short", Candidate{monday, clock.MustTime("09:00"), 10}, day, nil, DurationOutOfRange},
		{"too long", Candidate{monday, clock.MustTime("09:00"), 300}, day, nil, DurationOutOfRange},
		{"yesterday", Candidate{monday.AddDays(-1), clock.MustTime("09:00"), 60}, availability.Resolution{Date: monday.AddDays(-1), Configured: true, IsWorking: true}, nil, InvalidDate},
		{"unconfigured", Candidate{monday, clock.MustTime("09:00"), 60}, availability.Resolution{Date: monday}, nil, InvalidDate},
		{"resolution for another date", Candidate{monday.AddDays(1), clock.MustTime("09:00"), 60}, day, nil, InvalidDate},
	}
	for _, tc := range cases {
		v := d.Validate(tc.c, tc.res, tc.booked, now)
		if tc.want == "" {
			if !v.OK {
				t.Fatalf("%s: expected ok, got %+v", tc.name, v)
			}
			continue
		}
		if v.OK || v.Reason != tc.want {
			t.Fatalf("%s: expected %s, got %+v", tc.name, tc.want, v)
		}
		if v.Message == "" {
			t.Fatalf("%s: rejection must carry a message", tc.name)
		}
	}
}

func TestInvalidDateShortCircuits(t *testing.T) {
	// Every other check would also fail here; the date check must win.
	res := availability.Resolution{Date: monday, Configured: false}
	v := NewDetector(DefaultPolicy()).Validate(Candidate{monday, clock.MustTime("23:59"), 500}, res, []model.LedgerSlot{booked("00:00", "24:00")}, now)
	if v.Reason != InvalidDate {
		t.Fatalf("expected InvalidDate, got %+v", v)
	}
}

func TestRequireFullFit(t *testing.T) {
	day := workingDay(rng("09:00", "12:00"))
	c := Candidate{monday, clock.MustTime("11:30"), 60}

	if v := NewDetector(DefaultPolicy()).Validate(c, day, nil, now); !v.OK {
		t.Fatalf("start-in-window policy should accept, got %+v", v)
	}
	p := DefaultPolicy()
	p.RequireFullFit = true
	if v := NewDetector(p).Validate(c, day, nil, now); v.Reason != OutsideWorkingHours {
		t.Fatalf("full-fit policy should reject, got %+v", v)
	}
}

func TestFindAppointment(t *testing.T) {
	appts := []model.Appointment{
		{ID: "a1", Metadata: model.Placement{Date: monday, Slot: clock.MustTime("10:00"), Duration: 90}},
		{ID: "a2", Metadata: model.Placement{Date: monday.AddDays(1), Slot: clock.MustTime("09:00"), Duration: 60}},
		{ID: "a3", Metadata: model.Placement{Date: monday, Slot: clock.MustTime("13:15"), Duration: 30}},
	}

	l := FindAppointment(appts, monday, rng("10:00", "10:30"))
	if l.Kind != LookupStart || l.Appointment == nil || l.Appointment.ID != "a1" {
		t.Fatalf("expected start of a1, got %+v", l)
	}
	for _, probe := range []clock.Range{rng("10:30", "11:00"), rng("11:00", "11:30")} {
		if l := FindAppointment(appts, monday, probe); l.Kind != LookupContinuation || l.Appointment != nil {
			t.Fatalf("%s: expected continuation, got %+v", probe, l)
		}
	}
	if l := FindAppointment(appts, monday, rng("11:30", "12:00")); l.Kind != LookupEmpty {
		t.Fatalf("expected empty after the span, got %+v", l)
	}
	if l := FindAppointment(appts, monday, rng("09:00", "09:30")); l.Kind != LookupEmpty {
		t.Fatalf("appointment on another date must not match, got %+v", l)
	}
	if l := FindAppointment(appts, monday, rng("13:00", "13:30")); l.Kind != LookupEmpty {
		t.Fatalf("partial cover is not containment, got %+v", l)
	}
}
