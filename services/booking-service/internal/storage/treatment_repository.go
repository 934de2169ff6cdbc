package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/specialistbook/libs/db"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

const treatmentColumns = `id::text, specialist_id, category, name, duration_minutes, price_cents, currency, COALESCE(stripe_price_id, '')`

func scanTreatment(row pgx.Row) (model.Treatment, error) {
	var t model.Treatment
	err := row.Scan(&t.ID, &t.SpecialistID, &t.Category, &t.Name, &t.DurationMinutes, &t.PriceCents, &t.Currency, &t.StripePriceID)
	return t, err
}

func (s *Store) LoadTreatment(ctx context.Context, specialistID, treatmentID string) (model.Treatment, error) {
	t, err := scanTreatment(s.pool.QueryRow(ctx, `
		SELECT `+treatmentColumns+`
		FROM treatments
		WHERE specialist_id = $1 AND id::text = $2
	`, specialistID, treatmentID))
	if db.IsNotFound(err) {
		return model.Treatment{}, booking.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTreatments(ctx context.Context, specialistID string) ([]model.Treatment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+treatmentColumns+`
		FROM treatments
		WHERE specialist_id = $1
		ORDER BY category, name
	`, specialistID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Treatment, error) {
		return scanTreatment(row)
	})
}

func (s *Store) CreateTreatment(ctx context.Context, t model.Treatment) (model.Treatment, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO treatments (id, specialist_id, category, name, duration_minutes, price_cents, currency, stripe_price_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, t.ID, t.SpecialistID, t.Category, t.Name, t.DurationMinutes, t.PriceCents, t.Currency, t.StripePriceID)
	if err != nil {
		return model.Treatment{}, err
	}
	return t, nil
}
