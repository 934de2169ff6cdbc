package conflict

import (
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

type LookupKind string

const (
	// LookupStart: the probe opens an appointment; render its card here.
	LookupStart LookupKind = "start"
	// LookupContinuation: the probe is covered by an appointment that began earlier.
	LookupContinuation LookupKind = "continuation"
	LookupEmpty        LookupKind = "empty"
)

type Lookup struct {
	Kind        LookupKind         `json:"kind"`
	Appointment *model.Appointment `json:"appointment,omitempty"`
}

// FindAppointment looks for an appointment on date whose span fully contains probe.
func FindAppointment(appts []model.Appointment, date clock.Date, probe clock.Range) Lookup {
	for i := range appts {
		a := appts[i]
		if a.Metadata.Date != date {
			continue
		}
		span := a.Metadata.Range()
		if !span.Covers(probe) {
			continue
		}
		if probe.Start == span.Start {
			return Lookup{Kind: LookupStart, Appointment: &a}
		}
		return Lookup{Kind: LookupContinuation}
	}
	return Lookup{Kind: LookupEmpty}
}
