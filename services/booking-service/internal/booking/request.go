package booking

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

// Request is a booking attempt as assembled by the creation flow.
type Request struct {
	SpecialistID   string
	TreatmentID    string
	Treatment      *model.Treatment
	Date           clock.Date
	Slot           *clock.TimeOfDay
	Duration       int
	Patient        *model.Patient
	IdempotencyKey string
}

type patientInput struct {
	Name  string `validate:"required"`
	Email string `validate:"omitempty,email"`
	Phone string `validate:"omitempty,phone"`
}

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-()]{6,19}$`)
	validate     = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// Check reports the first missing or malformed selection, in the order the
// creation flow collects them.
func (r Request) Check() (conflict.Verdict, bool) {
	if r.Treatment == nil {
		return conflict.RejectField(conflict.IncompleteInput, "treatment", "Please select a treatment"), false
	}
	if r.Date.IsZero() {
		return conflict.RejectField(conflict.IncompleteInput, "date", "Please select a date"), false
	}
	if r.Slot == nil {
		return conflict.RejectField(conflict.IncompleteInput, "slot", "Please select a time slot for appointment"), false
	}
	if r.duration() == 0 {
		return conflict.RejectField(conflict.IncompleteInput, "duration", "Please add a duration for appointment"), false
	}
	if r.Patient == nil {
		return conflict.RejectField(conflict.IncompleteInput, "patient", "Please select existing patient or add new"), false
	}
	if r.Patient.ID == "" {
		return checkNewPatient(*r.Patient)
	}
	return conflict.Accept(), true
}

func checkNewPatient(p model.Patient) (conflict.Verdict, bool) {
	in := patientInput{
		Name:  strings.TrimSpace(p.Name),
		Email: strings.TrimSpace(p.Email),
		Phone: strings.TrimSpace(p.Phone),
	}
	err := validate.Struct(in)
	if err == nil {
		return conflict.Accept(), true
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return conflict.RejectField(conflict.IncompleteInput, "patient", "Patient details are not valid"), false
	}
	switch verrs[0].Field() {
	case "Name":
		return conflict.RejectField(conflict.IncompleteInput, "patient.name", "Patient name is required"), false
	case "Email":
		return conflict.RejectField(conflict.IncompleteInput, "patient.email", "Email is not valid"), false
	default:
		return conflict.RejectField(conflict.IncompleteInput, "patient.phone", "Phone number is not valid"), false
	}
}

// duration falls back to the treatment's length when none was entered.
func (r Request) duration() int {
	if r.Duration != 0 {
		return r.Duration
	}
	if r.Treatment != nil {
		return r.Treatment.DurationMinutes
	}
	return 0
}

// Candidate is only meaningful once Check passes.
func (r Request) Candidate() conflict.Candidate {
	c := conflict.Candidate{Date: r.Date, DurationMinutes: r.duration()}
	if r.Slot != nil {
		c.Start = *r.Slot
	}
	return c
}
