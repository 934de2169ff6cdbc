package model

import (
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
)

type Appointment struct {
	ID           string    `json:"id"`
	SpecialistID string    `json:"specialist_id"`
	Treatment    Treatment `json:"treatment"`
	Patient      Patient   `json:"patient"`
	Metadata     Placement `json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
}

// Placement is where an appointment sits on the calendar.
type Placement struct {
	Slot     clock.TimeOfDay `json:"slot"`
	Date     clock.Date      `json:"date"`
	Duration int             `json:"duration"`
}

func (p Placement) Range() clock.Range {
	return clock.Range{Start: p.Slot, End: p.Slot.Add(p.Duration)}
}

type Treatment struct {
	ID              string `json:"id"`
	SpecialistID    string `json:"specialist_id"`
	Category        string `json:"category"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Currency        string `json:"currency"`
	StripePriceID   string `json:"stripe_price_id,omitempty"`
}

type Patient struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
