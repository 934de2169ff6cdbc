package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/specialistbook/libs/httpx"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

type treatmentRequest struct {
	Category        string `json:"category"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Currency        string `json:"currency"`
}

func (h *Handler) Treatments(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	specialistID, ok := specialistParam(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		list, err := h.store.ListTreatments(r.Context(), specialistID)
		if err != nil {
			h.writeFault(w, r, err)
			return
		}
		if list == nil {
			list = []model.Treatment{}
		}
		httpx.WriteJSON(w, http.StatusOK, list)
		return
	}

	if !h.authorize(w, r, specialistID) {
		return
	}
	var req treatmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	policy := h.svc.Engine().Detector.Policy()
	if req.DurationMinutes < policy.MinDuration || req.DurationMinutes > policy.MaxDuration {
		http.Error(w, "duration_minutes out of range", http.StatusBadRequest)
		return
	}
	if req.PriceCents < 0 {
		http.Error(w, "price_cents must not be negative", http.StatusBadRequest)
		return
	}

	t := model.Treatment{
		ID:              uuid.NewString(),
		SpecialistID:    specialistID,
		Category:        strings.TrimSpace(req.Category),
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Currency:        strings.ToLower(strings.TrimSpace(req.Currency)),
	}
	if h.prices != nil {
		if err := h.prices.Sync(r.Context(), &t); err != nil {
			h.logger.Warn("treatment price not published", "treatment_id", t.ID, "err", err)
		}
	}
	created, err := h.store.CreateTreatment(r.Context(), t)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}
