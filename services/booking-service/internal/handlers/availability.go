package handlers

import (
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/specialistbook/libs/httpx"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/slots"
)

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	specialistID, ok := specialistParam(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	p, err := h.loadProfile(r.Context(), specialistID)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.svc.Engine().Resolver.Resolve(p, date, h.now()))
}

func (h *Handler) Week(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	specialistID, ok := specialistParam(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	p, err := h.loadProfile(r.Context(), specialistID)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.svc.Engine().Resolver.Week(p, date, h.now()))
}

type slotsResponse struct {
	Date    clock.Date        `json:"date"`
	Windows []clock.Range     `json:"windows"`
	Slots   []slots.TimeSlot  `json:"slots"`
	Free    []clock.TimeOfDay `json:"free,omitempty"`
}

type dayState struct {
	res    availability.Resolution
	booked []model.LedgerSlot
	resp   slotsResponse
}

// dayView resolves date and rejects days that cannot take bookings.
func (h *Handler) dayView(w http.ResponseWriter, r *http.Request, specialistID string, date clock.Date) (dayState, bool) {
	ctx := r.Context()
	p, err := h.loadProfile(ctx, specialistID)
	if err != nil {
		h.writeFault(w, r, err)
		return dayState{}, false
	}
	now := h.now()
	res := h.svc.Engine().Resolver.Resolve(p, date, now)
	if !res.Configured || date.Before(clock.DateOf(now)) {
		writeVerdict(w, conflict.Reject(conflict.InvalidDate))
		return dayState{}, false
	}
	if !res.IsWorking {
		writeVerdict(w, conflict.Reject(conflict.NonWorkingDay))
		return dayState{}, false
	}
	ledger, err := h.store.LoadLedger(ctx, specialistID)
	if err != nil {
		h.writeFault(w, r, err)
		return dayState{}, false
	}
	grid := h.grid
	if r.URL.Query().Get("grid") == "custom" {
		grid = slots.CustomGrid()
	}
	booked := ledger.For(date)
	out := slotsResponse{Date: date, Windows: res.Windows, Slots: slots.Generate(grid, date, booked, now)}
	if raw := r.URL.Query().Get("duration"); raw != "" {
		duration, err := strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			http.Error(w, "invalid duration", http.StatusBadRequest)
			return dayState{}, false
		}
		out.Free = slots.Free(res.Windows, duration, grid.Step, date, booked, now)
	}
	return dayState{res: res, booked: booked, resp: out}, true
}

// Slots lists the day's grid with booked and passed flags. With duration set
// it also lists the starts where such a booking fits.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	specialistID, ok := specialistParam(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	if view, ok := h.dayView(w, r, specialistID, date); ok {
		httpx.WriteJSON(w, http.StatusOK, view.resp)
	}
}

type customSlotRequest struct {
	SpecialistID string          `json:"specialist_id"`
	Date         clock.Date      `json:"date"`
	Time         clock.TimeOfDay `json:"time"`
	Duration     int             `json:"duration"`
}

type customSlotResponse struct {
	Inserted bool             `json:"inserted"`
	Slots    []slots.TimeSlot `json:"slots"`
}

// CustomSlot adds an ad-hoc start to the day's grid once the detector accepts it.
func (h *Handler) CustomSlot(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req customSlotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.SpecialistID == "" || req.Date.IsZero() {
		http.Error(w, "specialist_id and date are required", http.StatusBadRequest)
		return
	}
	if req.Duration == 0 {
		req.Duration = conflict.DefaultDuration
	}

	view, ok := h.dayView(w, r, req.SpecialistID, req.Date)
	if !ok {
		return
	}
	now := h.now()
	c := conflict.Candidate{Date: req.Date, Start: req.Time, DurationMinutes: req.Duration}
	if v := h.svc.Engine().Detector.Validate(c, view.res, view.booked, now); !v.OK {
		writeVerdict(w, v)
		return
	}
	list, inserted := slots.Insert(view.resp.Slots, slots.TimeSlot{Time: req.Time, IsPassed: clock.IsPast(req.Time, req.Date, now)})
	httpx.WriteJSON(w, http.StatusOK, customSlotResponse{Inserted: inserted, Slots: list})
}

type calendarCell struct {
	clock.Range
	conflict.Lookup
}

type calendarResponse struct {
	Date  clock.Date     `json:"date"`
	Cells []calendarCell `json:"cells"`
}

// CalendarDay renders the day in half-hour cells. A cell shows an appointment
// card where one starts, and nothing where one continues.
func (h *Handler) CalendarDay(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	specialistID, ok := specialistParam(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	appts, err := h.store.ListAppointments(r.Context(), specialistID, date)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	probes := slots.Probes(slots.CustomGrid(), 30)
	out := calendarResponse{Date: date, Cells: make([]calendarCell, 0, len(probes))}
	for _, p := range probes {
		out.Cells = append(out.Cells, calendarCell{Range: p, Lookup: conflict.FindAppointment(appts, date, p)})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
