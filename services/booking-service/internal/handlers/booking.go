package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/specialistbook/libs/httpx"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

type bookingRequest struct {
	SpecialistID string           `json:"specialist_id"`
	TreatmentID  string           `json:"treatment_id"`
	Date         clock.Date       `json:"date"`
	Slot         *clock.TimeOfDay `json:"slot"`
	Duration     int              `json:"duration"`
	Patient      *model.Patient   `json:"patient"`
}

func (b bookingRequest) toRequest(idempotencyKey string) booking.Request {
	return booking.Request{
		SpecialistID:   strings.TrimSpace(b.SpecialistID),
		TreatmentID:    strings.TrimSpace(b.TreatmentID),
		Date:           b.Date,
		Slot:           b.Slot,
		Duration:       b.Duration,
		Patient:        b.Patient,
		IdempotencyKey: idempotencyKey,
	}
}

func decodeBooking(w http.ResponseWriter, r *http.Request) (bookingRequest, bool) {
	var req bookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return bookingRequest{}, false
	}
	if strings.TrimSpace(req.SpecialistID) == "" {
		http.Error(w, "specialist_id is required", http.StatusBadRequest)
		return bookingRequest{}, false
	}
	return req, true
}

// ValidateBooking answers whether the booking would be accepted right now.
func (h *Handler) ValidateBooking(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	req, ok := decodeBooking(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Validate(r.Context(), req.toRequest(""))
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	if !v.OK {
		writeVerdict(w, v)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

// CreateBooking commits a booking. A repeated Idempotency-Key returns the
// stored appointment with 200 instead of 201.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	req, ok := decodeBooking(w, r)
	if !ok {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	out, err := h.svc.Book(r.Context(), req.toRequest(key))
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	if !out.Verdict.OK {
		writeVerdict(w, out.Verdict)
		return
	}
	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, out)
}
