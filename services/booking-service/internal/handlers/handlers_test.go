package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/specialistbook/libs/auth"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/slots"
	"github.com/segmentio/kafka-go"
)

var testNow = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

type stubPrices struct{}

func (stubPrices) Sync(_ context.Context, t *model.Treatment) error {
	t.StripePriceID = "price_123"
	return nil
}

func newTestHandler(t *testing.T) (*Handler, http.Handler, *booking.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := booking.NewMemoryStore()
	store.PutProfile(availability.Profile{
		SpecialistID:   "sp-1",
		FirstVisitDate: clock.MustDate("2025-03-03"),
		Days: []availability.DayRule{
			{Date: clock.MustDate("2025-03-12"), IsWorking: false},
		},
		Weeks: []availability.WeekRule{{
			StartDate: clock.MustDate("2025-03-03"), EndDate: clock.MustDate("2025-03-09"),
			IsWorking: true, IsRecurring: true,
			Windows: []clock.Range{{Start: clock.MustTime("09:00"), End: clock.MustTime("12:00")}},
		}},
	})
	store.PutTreatment(model.Treatment{ID: "tr-1", SpecialistID: "sp-1", Name: "Consultation", DurationMinutes: 60})

	engine := booking.NewEngine(availability.NewResolver(0, availability.DefaultFallback()), conflict.NewDetector(conflict.DefaultPolicy()))
	svc := booking.NewService(engine, store, nil, logger, booking.WithClock(func() time.Time { return testNow }))
	h := NewHandler(svc, store, stubPrices{}, logger, slots.DefaultGrid())
	mux := http.NewServeMux()
	h.Routes(mux, nil)
	return h, mux, store
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestProfileETagFlow(t *testing.T) {
	_, h, _ := newTestHandler(t)

	rr := do(t, h, http.MethodGet, "/api/v1/specialists/profile?specialist_id=new", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	tag := rr.Header().Get("ETag")
	seeded := decode[availability.Profile](t, rr)
	if tag == "" || len(seeded.Weeks) != 1 || !seeded.Weeks[0].DefaultWeek {
		t.Fatalf("expected seeded default week with etag, got %q %+v", tag, seeded)
	}

	rr = do(t, h, http.MethodGet, "/api/v1/specialists/profile?specialist_id=new", nil, map[string]string{"If-None-Match": tag})
	if rr.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodPut, "/api/v1/specialists/profile?specialist_id=new", seeded, map[string]string{"If-Match": `"stale"`})
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodPut, "/api/v1/specialists/profile?specialist_id=new", seeded, map[string]string{"If-Match": tag})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	saved := decode[availability.Profile](t, rr)
	if saved.Version != 1 || len(saved.Weeks) != 0 {
		t.Fatalf("expected empty default week dropped at version 1, got %+v", saved)
	}
	if rr.Header().Get("ETag") == tag {
		t.Fatal("etag must change after a save")
	}

	rr = do(t, h, http.MethodPut, "/api/v1/specialists/profile?specialist_id=new", seeded, map[string]string{"If-Match": tag})
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 for the superseded tag, got %d", rr.Code)
	}
}

func TestProfileRejectsInvalidRules(t *testing.T) {
	_, h, _ := newTestHandler(t)
	bad := availability.Profile{Days: []availability.DayRule{{Date: clock.MustDate("2025-03-20"), IsWorking: true}}}
	rr := do(t, h, http.MethodPut, "/api/v1/specialists/profile?specialist_id=sp-1", bad, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if body := decode[profileError](t, rr); body.Reason != "invalid_profile" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSlots(t *testing.T) {
	_, h, _ := newTestHandler(t)

	rr := do(t, h, http.MethodGet, "/api/v1/slots?specialist_id=sp-1&date=2025-03-10&duration=60", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode[slotsResponse](t, rr)
	if len(body.Slots) != 13 || body.Slots[0].Time != clock.MustTime("09:00") || body.Slots[12].Time != clock.MustTime("21:00") {
		t.Fatalf("unexpected grid %+v", body.Slots)
	}
	want := []clock.TimeOfDay{clock.MustTime("09:00"), clock.MustTime("10:00"), clock.MustTime("11:00")}
	if len(body.Free) != len(want) {
		t.Fatalf("expected free %v, got %v", want, body.Free)
	}
	for i := range want {
		if body.Free[i] != want[i] {
			t.Fatalf("expected free %v, got %v", want, body.Free)
		}
	}

	cases := map[string]conflict.Reason{
		"2025-03-01": conflict.InvalidDate,
		"2025-03-12": conflict.NonWorkingDay,
	}
	for date, reason := range cases {
		rr := do(t, h, http.MethodGet, "/api/v1/slots?specialist_id=sp-1&date="+date, nil, nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", date, rr.Code)
		}
		if v := decode[conflict.Verdict](t, rr); v.Reason != reason {
			t.Fatalf("%s: expected %s, got %+v", date, reason, v)
		}
	}

	if rr := do(t, h, http.MethodGet, "/api/v1/slots?specialist_id=sp-1&date=bad", nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad date, got %d", rr.Code)
	}
}

func bookingBody(slot string, duration int, patient *model.Patient) map[string]any {
	body := map[string]any{
		"specialist_id": "sp-1",
		"treatment_id":  "tr-1",
		"date":          "2025-03-10",
		"slot":          slot,
		"duration":      duration,
	}
	if patient != nil {
		body["patient"] = patient
	}
	return body
}

func TestCreateBookingAndCalendar(t *testing.T) {
	_, h, store := newTestHandler(t)
	ada := &model.Patient{Name: "Ada", Email: "ada@example.com"}
	key := map[string]string{"Idempotency-Key": "req-1"}

	rr := do(t, h, http.MethodPost, "/api/v1/bookings", bookingBody("09:00", 90, ada), key)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	first := decode[booking.Outcome](t, rr)
	if first.Appointment == nil || first.Appointment.Metadata.Duration != 90 {
		t.Fatalf("unexpected outcome %+v", first)
	}

	rr = do(t, h, http.MethodPost, "/api/v1/bookings", bookingBody("09:00", 90, ada), key)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected replay 200, got %d", rr.Code)
	}
	if again := decode[booking.Outcome](t, rr); !again.Replayed || again.Appointment.ID != first.Appointment.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Appointment.ID, again)
	}

	rr = do(t, h, http.MethodPost, "/api/v1/bookings", bookingBody("10:00", 30, ada), nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if v := decode[conflict.Verdict](t, rr); v.Reason != conflict.SlotAlreadyBooked {
		t.Fatalf("expected overlap rejection, got %+v", v)
	}

	rr = do(t, h, http.MethodPost, "/api/v1/bookings", bookingBody("11:00", 30, nil), nil)
	if v := decode[conflict.Verdict](t, rr); rr.Code != http.StatusUnprocessableEntity || v.Reason != conflict.IncompleteInput || v.Field != "patient" {
		t.Fatalf("expected incomplete patient, got %d %+v", rr.Code, v)
	}

	if n := len(store.Appointments("sp-1")); n != 1 {
		t.Fatalf("expected one stored appointment, got %d", n)
	}

	rr = do(t, h, http.MethodGet, "/api/v1/calendar/day?specialist_id=sp-1&date=2025-03-10", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var cal struct {
		Cells []struct {
			Start string `json:"start"`
			Kind  string `json:"kind"`
		} `json:"cells"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &cal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	kinds := map[string]string{}
	for _, c := range cal.Cells {
		kinds[c.Start] = c.Kind
	}
	want := map[string]string{"08:30": "empty", "09:00": "start", "09:30": "continuation", "10:00": "continuation", "10:30": "empty"}
	for start, kind := range want {
		if kinds[start] != kind {
			t.Fatalf("cell %s: expected %s, got %s", start, kind, kinds[start])
		}
	}
	if len(cal.Cells) != 48 {
		t.Fatalf("expected 48 half-hour cells, got %d", len(cal.Cells))
	}
}

func TestValidateBookingDoesNotWrite(t *testing.T) {
	_, h, store := newTestHandler(t)
	rr := do(t, h, http.MethodPost, "/api/v1/bookings/validate", bookingBody("10:00", 60, &model.Patient{ID: "p-1"}), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if v := decode[conflict.Verdict](t, rr); !v.OK {
		t.Fatalf("expected acceptance, got %+v", v)
	}
	rr = do(t, h, http.MethodPost, "/api/v1/bookings/validate", bookingBody("10:00", 300, &model.Patient{ID: "p-1"}), nil)
	if v := decode[conflict.Verdict](t, rr); v.Reason != conflict.DurationOutOfRange {
		t.Fatalf("expected duration rejection, got %+v", v)
	}
	if len(store.Appointments("sp-1")) != 0 {
		t.Fatal("validate must not book")
	}
}

func TestCustomSlot(t *testing.T) {
	_, h, _ := newTestHandler(t)
	body := map[string]any{"specialist_id": "sp-1", "date": "2025-03-10", "time": "11:30", "duration": 30}
	rr := do(t, h, http.MethodPost, "/api/v1/slots/custom", body, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode[customSlotResponse](t, rr)
	if !out.Inserted || len(out.Slots) != 14 {
		t.Fatalf("expected insertion, got %+v", out)
	}
	for i := 1; i < len(out.Slots); i++ {
		if out.Slots[i-1].Time >= out.Slots[i].Time {
			t.Fatalf("slots out of order at %d: %v", i, out.Slots)
		}
	}

	body["time"] = "10:00"
	if out := decode[customSlotResponse](t, do(t, h, http.MethodPost, "/api/v1/slots/custom", body, nil)); out.Inserted || len(out.Slots) != 13 {
		t.Fatalf("expected duplicate to be ignored, got %+v", out)
	}

	body["time"] = "13:30"
	rr = do(t, h, http.MethodPost, "/api/v1/slots/custom", body, nil)
	if v := decode[conflict.Verdict](t, rr); rr.Code != http.StatusUnprocessableEntity || v.Reason != conflict.OutsideWorkingHours {
		t.Fatalf("expected outside working hours, got %d %+v", rr.Code, v)
	}
}

func TestTreatments(t *testing.T) {
	_, h, _ := newTestHandler(t)
	rr := do(t, h, http.MethodPost, "/api/v1/treatments?specialist_id=sp-2", map[string]any{
		"category": "Dental", "name": "Cleaning", "duration_minutes": 45, "price_cents": 7500, "currency": "EUR",
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[model.Treatment](t, rr)
	if created.ID == "" || created.StripePriceID != "price_123" || created.Currency != "eur" {
		t.Fatalf("unexpected treatment %+v", created)
	}

	rr = do(t, h, http.MethodPost, "/api/v1/treatments?specialist_id=sp-2", map[string]any{"name": "Quick", "duration_minutes": 5}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short treatment, got %d", rr.Code)
	}

	list := decode[[]model.Treatment](t, do(t, h, http.MethodGet, "/api/v1/treatments?specialist_id=sp-2", nil, nil))
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestWritesRequireSpecialistToken(t *testing.T) {
	handler, h, _ := newTestHandler(t)
	handler.RequireTokens(auth.NewHS256Verifier("test-secret", ""))
	body := map[string]any{"name": "Cleaning", "duration_minutes": 30}

	if rr := do(t, h, http.MethodGet, "/api/v1/treatments?specialist_id=sp-1", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("reads stay open, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/v1/treatments?specialist_id=sp-1", body, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	other, err := auth.SignHS256(auth.Claims{SpecialistID: "sp-2"}, "test-secret", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if rr := do(t, h, http.MethodPost, "/api/v1/treatments?specialist_id=sp-1", body, map[string]string{"Authorization": "Bearer " + other}); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	own, _ := auth.SignHS256(auth.Claims{SpecialistID: "sp-1"}, "test-secret", time.Minute)
	if rr := do(t, h, http.MethodPost, "/api/v1/treatments?specialist_id=sp-1", body, map[string]string{"Authorization": "Bearer " + own}); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodPut, "/api/v1/specialists/profile?specialist_id=sp-1", availability.Profile{}, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on profile write, got %d", rr.Code)
	}
}

func TestMethodAndParamChecks(t *testing.T) {
	_, h, _ := newTestHandler(t)
	if rr := do(t, h, http.MethodDelete, "/api/v1/bookings", nil, nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/availability?date=2025-03-10", nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without specialist, got %d", rr.Code)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{"specialist_id":"sp-1","extra":1}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
}

func TestAvailabilityAndWeek(t *testing.T) {
	_, h, _ := newTestHandler(t)
	res := decode[availability.Resolution](t, do(t, h, http.MethodGet, "/api/v1/availability?specialist_id=sp-1&date=2025-03-12", nil, nil))
	if res.IsWorking || res.Source != availability.SourceDay {
		t.Fatalf("expected exact day off, got %+v", res)
	}
	week := decode[availability.WeekSummary](t, do(t, h, http.MethodGet, "/api/v1/availability/week?specialist_id=sp-1&date=2025-03-12", nil, nil))
	if week.Start != clock.MustDate("2025-03-10") || week.WorkingDays != 6 {
		t.Fatalf("unexpected week %+v", week)
	}
}

func TestIngestProfile(t *testing.T) {
	handler, _, store := newTestHandler(t)
	payload, _ := json.Marshal(availability.Profile{
		SpecialistID:   "sp-9",
		FirstVisitDate: clock.MustDate("2025-03-03"),
		Days:           []availability.DayRule{{Date: clock.MustDate("2025-03-10"), IsWorking: true, Windows: []clock.Range{{Start: clock.MustTime("10:00"), End: clock.MustTime("11:00")}}}},
	})
	if err := handler.IngestProfile(context.Background(), kafka.Message{Value: payload}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	p, err := store.LoadProfile(context.Background(), "sp-9")
	if err != nil || p.Version != 1 || len(p.Days) != 1 {
		t.Fatalf("unexpected stored profile %+v %v", p, err)
	}
	if err := handler.IngestProfile(context.Background(), kafka.Message{Value: []byte("{")}); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
}
