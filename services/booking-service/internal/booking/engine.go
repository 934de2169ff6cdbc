package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

// Outcome is either an accepted booking with its new ledger, or a rejection.
type Outcome struct {
	Verdict     conflict.Verdict   `json:"verdict"`
	Appointment *model.Appointment `json:"appointment,omitempty"`
	Ledger      model.Ledger       `json:"-"`
	// Replayed is set when an earlier request with the same idempotency key is returned.
	Replayed bool `json:"replayed,omitempty"`
}

// Engine evaluates a request against snapshots of the profile and ledger.
// It performs no I/O and never mutates its inputs.
type Engine struct {
	Resolver *availability.Resolver
	Detector *conflict.Detector
	NewID    func() string
}

func NewEngine(resolver *availability.Resolver, detector *conflict.Detector) *Engine {
	return &Engine{Resolver: resolver, Detector: detector, NewID: uuid.NewString}
}

// Validate runs the completeness checks and the conflict detector only.
func (e *Engine) Validate(req Request, profile availability.Profile, ledger model.Ledger, now time.Time) conflict.Verdict {
	if v, ok := req.Check(); !ok {
		return v
	}
	c := req.Candidate()
	res := e.Resolver.Resolve(profile, c.Date, now)
	return e.Detector.Validate(c, res, ledger.For(c.Date), now)
}

func (e *Engine) Evaluate(req Request, profile availability.Profile, ledger model.Ledger, now time.Time) Outcome {
	v := e.Validate(req, profile, ledger, now)
	if !v.OK {
		return Outcome{Verdict: v}
	}

	c := req.Candidate()
	patient := *req.Patient
	if patient.ID == "" {
		patient.ID = e.NewID()
	}
	appt := model.Appointment{
		ID:           e.NewID(),
		SpecialistID: req.SpecialistID,
		Treatment:    *req.Treatment,
		Patient:      patient,
		Metadata:     model.Placement{Slot: c.Start, Date: c.Date, Duration: c.DurationMinutes},
		CreatedAt:    now.UTC(),
	}
	return Outcome{Verdict: v, Appointment: &appt, Ledger: Commit(c, ledger)}
}
