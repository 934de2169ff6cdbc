package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

type State string

const (
	SelectingTreatment State = "selecting_treatment"
	SelectingDate      State = "selecting_date"
	SelectingSlot      State = "selecting_slot"
	SelectingPatient   State = "selecting_patient"
	Validating         State = "validating"
	Committed          State = "committed"
	Rejected           State = "rejected"
)

var stepOrder = map[State]int{
	SelectingTreatment: 0,
	SelectingDate:      1,
	SelectingSlot:      2,
	SelectingPatient:   3,
}

var ErrInvalidTransition = errors.New("invalid booking flow transition")

// Booker commits a request; Service and tests provide implementations.
type Booker interface {
	Book(ctx context.Context, req Request) (Outcome, error)
}

// Flow drives one appointment creation. It is not safe for concurrent use.
type Flow struct {
	state   State
	resume  State
	req     Request
	outcome Outcome
}

func NewFlow(specialistID string) *Flow {
	return &Flow{state: SelectingTreatment, req: Request{SpecialistID: specialistID}}
}

func (f *Flow) State() State { return f.state }

// ResumeAt is where control returns after a rejection.
func (f *Flow) ResumeAt() State { return f.resume }

func (f *Flow) Outcome() Outcome { return f.outcome }

func (f *Flow) Request() Request { return f.req }

// reached is the furthest selection step the flow currently allows.
func (f *Flow) reached() (int, bool) {
	switch f.state {
	case Validating, Committed:
		return 0, false
	case Rejected:
		return stepOrder[f.resume], true
	default:
		return stepOrder[f.state], true
	}
}

func (f *Flow) enter(step, next State) error {
	at, ok := f.reached()
	if !ok || stepOrder[step] > at {
		return fmt.Errorf("%w: cannot enter %s from %s", ErrInvalidTransition, step, f.state)
	}
	if f.state == Rejected {
		f.state = f.resume
		f.resume = ""
		f.outcome = Outcome{}
	}
	if stepOrder[next] > stepOrder[f.state] {
		f.state = next
	}
	return nil
}

func (f *Flow) SelectTreatment(t model.Treatment) error {
	if err := f.enter(SelectingTreatment, SelectingDate); err != nil {
		return err
	}
	f.req.Treatment = &t
	f.req.TreatmentID = t.ID
	return nil
}

func (f *Flow) SelectDate(d clock.Date) error {
	if err := f.enter(SelectingDate, SelectingSlot); err != nil {
		return err
	}
	f.req.Date = d
	return nil
}

func (f *Flow) SelectSlot(t clock.TimeOfDay, durationMinutes int) error {
	if err := f.enter(SelectingSlot, SelectingPatient); err != nil {
		return err
	}
	f.req.Slot = &t
	f.req.Duration = durationMinutes
	return nil
}

func (f *Flow) SelectPatient(p model.Patient) error {
	if err := f.enter(SelectingPatient, SelectingPatient); err != nil {
		return err
	}
	f.req.Patient = &p
	return nil
}

// Submit validates and commits through b. A rejection moves the flow to
// Rejected with ResumeAt naming the step to correct; a fault leaves the
// selections in place and returns the error.
func (f *Flow) Submit(ctx context.Context, b Booker) (Outcome, error) {
	if f.state == Validating || f.state == Committed {
		return Outcome{}, fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, f.state)
	}
	prev, prevResume := f.state, f.resume
	f.state = Validating

	out, err := b.Book(ctx, f.req)
	if err != nil {
		f.state, f.resume = prev, prevResume
		return Outcome{}, err
	}
	f.outcome = out
	if out.Verdict.OK {
		f.state = Committed
		f.resume = ""
		return out, nil
	}
	f.state = Rejected
	f.resume = resumeFor(out.Verdict)
	return out, nil
}

func resumeFor(v conflict.Verdict) State {
	switch v.Field {
	case "treatment":
		return SelectingTreatment
	case "date":
		return SelectingDate
	case "patient", "patient.name", "patient.email", "patient.phone":
		return SelectingPatient
	}
	return SelectingSlot
}
