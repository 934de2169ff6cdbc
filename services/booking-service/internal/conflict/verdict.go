package conflict

// Reason is a validation rejection code. Rejections are expected user-input
// outcomes and are carried as values, never as errors.
type Reason string

const (
	InvalidDate             Reason = "invalid_date"
	NonWorkingDay           Reason = "non_working_day"
	OutsideWorkingHours     Reason = "outside_working_hours"
	SlotAlreadyBooked       Reason = "slot_already_booked"
	SlotInPast              Reason = "slot_in_past"
	DurationExceedsDayLimit Reason = "duration_exceeds_day_limit"
	DurationOutOfRange      Reason = "duration_out_of_range"
	IncompleteInput         Reason = "incomplete_input"
)

var messages = map[Reason]string{
	InvalidDate:             "Invalid date",
	NonWorkingDay:           "Selected date is not a work day",
	OutsideWorkingHours:     "Selected time is outside working hours",
	SlotAlreadyBooked:       "Time slot is overlapping with an existing booked slot, please select another",
	SlotInPast:              "Time slot is invalid, please select another",
	DurationExceedsDayLimit: "Appointment exceeds the day limit",
	DurationOutOfRange:      "Appointment duration is out of range",
	IncompleteInput:         "Booking details are incomplete",
}

func (r Reason) Message() string {
	if m, ok := messages[r]; ok {
		return m
	}
	return string(r)
}

type Verdict struct {
	OK      bool   `json:"ok"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	// Field names the offending input when the rejection is about one field.
	Field string `json:"field,omitempty"`
}

func Accept() Verdict { return Verdict{OK: true} }

func Reject(r Reason) Verdict {
	return Verdict{Reason: r, Message: r.Message()}
}

// RejectField attaches the offending field and a field-specific message.
func RejectField(r Reason, field, msg string) Verdict {
	return Verdict{Reason: r, Message: msg, Field: field}
}
