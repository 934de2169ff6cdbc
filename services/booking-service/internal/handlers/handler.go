package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/specialistbook/libs/auth"
	"github.com/md-rashed-zaman/specialistbook/libs/httpx"
	"github.com/md-rashed-zaman/specialistbook/libs/redisx"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/slots"
)

// Store is everything the HTTP surface reads and writes.
type Store interface {
	booking.Store
	SaveProfile(ctx context.Context, p availability.Profile, expectedVersion int64) (availability.Profile, error)
	ListTreatments(ctx context.Context, specialistID string) ([]model.Treatment, error)
	CreateTreatment(ctx context.Context, t model.Treatment) (model.Treatment, error)
	ListAppointments(ctx context.Context, specialistID string, date clock.Date) ([]model.Appointment, error)
}

// PriceSyncer publishes a treatment's price before it is stored.
type PriceSyncer interface {
	Sync(ctx context.Context, t *model.Treatment) error
}

type Handler struct {
	svc    *booking.Service
	store  Store
	prices PriceSyncer
	logger *slog.Logger
	grid   slots.Grid
	tokens *auth.Verifier
}

func NewHandler(svc *booking.Service, store Store, prices PriceSyncer, logger *slog.Logger, grid slots.Grid) *Handler {
	return &Handler{svc: svc, store: store, prices: prices, logger: logger, grid: grid}
}

// Routes registers the API on mux. limit wraps the endpoints that write.
func (h *Handler) Routes(mux *http.ServeMux, limit httpx.Middleware) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("/api/v1/specialists/profile", h.Profile)
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/availability/week", h.Week)
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/slots/custom", h.CustomSlot)
	mux.HandleFunc("/api/v1/calendar/day", h.CalendarDay)
	mux.HandleFunc("/api/v1/treatments", h.Treatments)
	mux.Handle("/api/v1/bookings/validate", limit(http.HandlerFunc(h.ValidateBooking)))
	mux.Handle("/api/v1/bookings", limit(http.HandlerFunc(h.CreateBooking)))
}

// RequireTokens makes profile and treatment writes demand a bearer token
// issued to the specialist being modified.
func (h *Handler) RequireTokens(v *auth.Verifier) *Handler {
	h.tokens = v
	return h
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, specialistID string) bool {
	if h.tokens == nil {
		return true
	}
	claims, err := h.tokens.FromRequest(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="specialistbook"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if !claims.CanActFor(specialistID) {
		h.logger.Warn("token does not cover specialist", "request_id", httpx.RequestIDFromContext(r.Context()), "specialist_id", specialistID, "token_specialist", claims.SpecialistID)
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) now() time.Time { return h.svc.Now() }

// loadProfile falls back to the seeded default profile for a specialist who
// never saved one.
func (h *Handler) loadProfile(ctx context.Context, specialistID string) (availability.Profile, error) {
	p, err := h.store.LoadProfile(ctx, specialistID)
	if errors.Is(err, booking.ErrNotFound) {
		return availability.DefaultProfile(specialistID, h.now()), nil
	}
	return p, err
}

func specialistParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("specialist_id"))
	if id == "" {
		http.Error(w, "specialist_id is required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func dateParam(w http.ResponseWriter, r *http.Request) (clock.Date, bool) {
	d, err := clock.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return clock.Date{}, false
	}
	return d, true
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeVerdict(w http.ResponseWriter, v conflict.Verdict) {
	httpx.WriteJSON(w, http.StatusUnprocessableEntity, v)
}

// writeFault maps service errors to status codes without leaking details.
func (h *Handler) writeFault(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrVersionConflict):
		http.Error(w, "concurrent update, retry", http.StatusConflict)
	case errors.Is(err, redisx.ErrLockHeld), errors.Is(err, context.DeadlineExceeded):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "specialist is busy, retry", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
