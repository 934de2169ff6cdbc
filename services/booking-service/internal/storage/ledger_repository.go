package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/specialistbook/libs/db"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/outbox"
)

const appointmentColumns = `
	id::text, specialist_id, treatment, patient_id, patient_name, patient_email, patient_phone,
	appt_date::text, slot_minute, duration_minutes, created_at`

// LoadLedger returns an empty ledger at version 0 for a specialist with no bookings.
func (s *Store) LoadLedger(ctx context.Context, specialistID string) (model.Ledger, error) {
	ledger := model.Ledger{SpecialistID: specialistID}
	var days []byte
	err := s.pool.QueryRow(ctx, `
		SELECT days, version
		FROM booking_ledgers
		WHERE specialist_id = $1
	`, specialistID).Scan(&days, &ledger.Version)
	if db.IsNotFound(err) {
		return ledger, nil
	}
	if err != nil {
		return model.Ledger{}, err
	}
	if err := json.Unmarshal(days, &ledger.Days); err != nil {
		return model.Ledger{}, fmt.Errorf("decode ledger %s: %w", specialistID, err)
	}
	return ledger, nil
}

func (s *Store) FindIdempotent(ctx context.Context, specialistID, key string) (model.Appointment, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+prefixed("a", appointmentColumns)+`
		FROM booking_idempotency_keys k
		JOIN appointments a ON a.id = k.appointment_id
		WHERE k.specialist_id = $1 AND k.idempotency_key = $2
	`, specialistID, key)
	appt, err := scanAppointment(row)
	if db.IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

// CommitBooking writes the ledger, the appointment, the idempotency key and
// the booked event in one transaction. The ledger row is updated only at
// w.ExpectedVersion; otherwise booking.ErrVersionConflict is returned.
func (s *Store) CommitBooking(ctx context.Context, w booking.Write) error {
	days, err := json.Marshal(w.Ledger.Days)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	evt, err := outbox.AppointmentBookedEvent(w.Appointment)
	if err != nil {
		return err
	}
	a := w.Appointment

	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := bumpLedger(ctx, tx, a.SpecialistID, days, w.ExpectedVersion); err != nil {
			return err
		}
		treatment, err := json.Marshal(a.Treatment)
		if err != nil {
			return fmt.Errorf("encode treatment: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, specialist_id, treatment_id, treatment, patient_id, patient_name, patient_email, patient_phone,
				 appt_date, slot_minute, duration_minutes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date, $10, $11, $12)
		`, a.ID, a.SpecialistID, a.Treatment.ID, treatment, a.Patient.ID, a.Patient.Name, a.Patient.Email, a.Patient.Phone,
			a.Metadata.Date.String(), int(a.Metadata.Slot), a.Metadata.Duration, a.CreatedAt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if w.IdempotencyKey != "" {
			if _, err := tx.Exec(ctx, `
				INSERT INTO booking_idempotency_keys (specialist_id, idempotency_key, appointment_id)
				VALUES ($1, $2, $3)
			`, a.SpecialistID, w.IdempotencyKey, a.ID); err != nil {
				if db.IsUniqueViolation(err, "booking_idempotency_keys_pkey") {
					return booking.ErrVersionConflict
				}
				return fmt.Errorf("insert idempotency key: %w", err)
			}
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
}

func bumpLedger(ctx context.Context, tx pgx.Tx, specialistID string, days []byte, expected int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE booking_ledgers
		SET days = $2, version = version + 1, updated_at = now()
		WHERE specialist_id = $1 AND version = $3
	`, specialistID, days, expected)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if expected != 0 {
		return booking.ErrVersionConflict
	}
	tag, err = tx.Exec(ctx, `
		INSERT INTO booking_ledgers (specialist_id, days, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (specialist_id) DO NOTHING
	`, specialistID, days)
	if err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrVersionConflict
	}
	return nil
}

func (s *Store) ListAppointments(ctx context.Context, specialistID string, date clock.Date) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE specialist_id = $1 AND appt_date = $2::date
		ORDER BY slot_minute ASC
	`, specialistID, date.String())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a         model.Appointment
		treatment []byte
		date      string
		slot      int
		createdAt time.Time
	)
	err := row.Scan(&a.ID, &a.SpecialistID, &treatment, &a.Patient.ID, &a.Patient.Name, &a.Patient.Email,
		&a.Patient.Phone, &date, &slot, &a.Metadata.Duration, &createdAt)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := json.Unmarshal(treatment, &a.Treatment); err != nil {
		return model.Appointment{}, fmt.Errorf("decode treatment: %w", err)
	}
	d, err := clock.ParseDate(date)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Metadata.Date = d
	a.Metadata.Slot = clock.TimeOfDay(slot)
	a.CreatedAt = createdAt.UTC()
	return a, nil
}
