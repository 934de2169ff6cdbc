package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	TypeAppointmentBooked = "booking.appointment.booked.v1"
	TypeProfileUpdated    = "availability.profile.updated.v1"
)

type AppointmentBooked struct {
	AppointmentID string     `json:"appointment_id"`
	SpecialistID  string     `json:"specialist_id"`
	TreatmentID   string     `json:"treatment_id"`
	PatientID     string     `json:"patient_id"`
	PatientName   string     `json:"patient_name"`
	PatientEmail  string     `json:"patient_email,omitempty"`
	Date          clock.Date `json:"date"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	Duration      int        `json:"duration"`
	BookedAt      time.Time  `json:"booked_at"`
}

type ProfileUpdated struct {
	SpecialistID string    `json:"specialist_id"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func AppointmentBookedEvent(a model.Appointment) (Event, error) {
	span := a.Metadata.Range()
	return newEvent("appointment", a.ID, TypeAppointmentBooked, AppointmentBooked{
		AppointmentID: a.ID,
		SpecialistID:  a.SpecialistID,
		TreatmentID:   a.Treatment.ID,
		PatientID:     a.Patient.ID,
		PatientName:   a.Patient.Name,
		PatientEmail:  a.Patient.Email,
		Date:          a.Metadata.Date,
		StartTime:     span.Start.String(),
		EndTime:       span.End.String(),
		Duration:      a.Metadata.Duration,
		BookedAt:      a.CreatedAt,
	})
}

func ProfileUpdatedEvent(specialistID string, version int64, at time.Time) (Event, error) {
	return newEvent("specialist", specialistID, TypeProfileUpdated, ProfileUpdated{
		SpecialistID: specialistID,
		Version:      version,
		UpdatedAt:    at,
	})
}

func newEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{AggregateType: aggregateType, AggregateID: aggregateID, EventType: eventType, Payload: body}, nil
}
