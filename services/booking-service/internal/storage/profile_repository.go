package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/specialistbook/libs/db"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/outbox"
)

func (s *Store) LoadProfile(ctx context.Context, specialistID string) (availability.Profile, error) {
	var (
		p    availability.Profile
		body []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT profile, version, updated_at
		FROM specialist_profiles
		WHERE specialist_id = $1
	`, specialistID).Scan(&body, &p.Version, &p.UpdatedAt)
	if db.IsNotFound(err) {
		return availability.Profile{}, booking.ErrNotFound
	}
	if err != nil {
		return availability.Profile{}, err
	}
	version, updatedAt := p.Version, p.UpdatedAt
	if err := json.Unmarshal(body, &p); err != nil {
		return availability.Profile{}, fmt.Errorf("decode profile %s: %w", specialistID, err)
	}
	p.SpecialistID = specialistID
	p.Version, p.UpdatedAt = version, updatedAt.UTC()
	return p, nil
}

// SaveProfile stores p when the stored version equals expectedVersion (0 for
// a new profile) and records the update in the outbox. booking.AnyVersion
// overwrites unconditionally.
func (s *Store) SaveProfile(ctx context.Context, p availability.Profile, expectedVersion int64) (availability.Profile, error) {
	p.Version = 0
	body, err := json.Marshal(p)
	if err != nil {
		return availability.Profile{}, fmt.Errorf("encode profile: %w", err)
	}

	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var row pgx.Row
		switch {
		case expectedVersion == booking.AnyVersion:
			row = tx.QueryRow(ctx, `
				INSERT INTO specialist_profiles (specialist_id, profile, version)
				VALUES ($1, $2, 1)
				ON CONFLICT (specialist_id) DO UPDATE
				SET profile = EXCLUDED.profile, version = specialist_profiles.version + 1, updated_at = now()
				RETURNING version, updated_at
			`, p.SpecialistID, body)
		case expectedVersion == 0:
			row = tx.QueryRow(ctx, `
				INSERT INTO specialist_profiles (specialist_id, profile, version)
				VALUES ($1, $2, 1)
				ON CONFLICT (specialist_id) DO NOTHING
				RETURNING version, updated_at
			`, p.SpecialistID, body)
		default:
			row = tx.QueryRow(ctx, `
				UPDATE specialist_profiles
				SET profile = $2, version = version + 1, updated_at = now()
				WHERE specialist_id = $1 AND version = $3
				RETURNING version, updated_at
			`, p.SpecialistID, body, expectedVersion)
		}
		if err := row.Scan(&p.Version, &p.UpdatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return booking.ErrVersionConflict
			}
			return fmt.Errorf("save profile: %w", err)
		}
		p.UpdatedAt = p.UpdatedAt.UTC()

		evt, err := outbox.ProfileUpdatedEvent(p.SpecialistID, p.Version, p.UpdatedAt)
		if err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return availability.Profile{}, err
	}
	return p, nil
}
