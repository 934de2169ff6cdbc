package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/md-rashed-zaman/specialistbook/libs/httpx"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/segmentio/kafka-go"
)

type profileError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	specialistID, ok := specialistParam(w, r)
	if !ok {
		return
	}
	current, err := h.loadProfile(r.Context(), specialistID)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	currentTag, err := profileTag(current)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		if httpx.NotModified(w, r, currentTag) {
			return
		}
		httpx.WriteJSON(w, http.StatusOK, current)
		return
	}

	if !h.authorize(w, r, specialistID) {
		return
	}
	if !httpx.IfMatch(r, currentTag) {
		w.Header().Set("ETag", currentTag)
		http.Error(w, "profile changed since it was read", http.StatusPreconditionFailed)
		return
	}
	var next availability.Profile
	if err := httpx.DecodeJSON(r, &next); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	next.SpecialistID = specialistID
	next = next.DropEmptyDefaultWeek()
	if err := next.Validate(); err != nil {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, profileError{Reason: "invalid_profile", Message: err.Error()})
		return
	}

	saved, err := h.store.SaveProfile(r.Context(), next, current.Version)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	tag, err := profileTag(saved)
	if err != nil {
		h.writeFault(w, r, err)
		return
	}
	h.logger.Info("availability profile saved", "specialist_id", specialistID, "version", saved.Version)
	w.Header().Set("ETag", tag)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func profileTag(p availability.Profile) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return httpx.ETag(body), nil
}

// IngestProfile applies a working-days update published by the dashboard
// backend. Malformed events are logged and dropped.
func (h *Handler) IngestProfile(ctx context.Context, msg kafka.Message) error {
	var p availability.Profile
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		h.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if p.SpecialistID == "" {
		h.logger.Error("missing required event fields", "topic", msg.Topic)
		return nil
	}
	p = p.DropEmptyDefaultWeek()
	if err := p.Validate(); err != nil {
		h.logger.Error("rejected working days update", "specialist_id", p.SpecialistID, "err", err)
		return nil
	}
	saved, err := h.store.SaveProfile(ctx, p, booking.AnyVersion)
	if err != nil {
		return err
	}
	h.logger.Info("working days ingested", "specialist_id", saved.SpecialistID, "version", saved.Version)
	return nil
}
