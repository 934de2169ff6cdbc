package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/specialistbook/libs/otel"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// AnyVersion disables the optimistic version check on profile saves.
const AnyVersion int64 = -1

// Write is everything a successful booking persists atomically.
type Write struct {
	Appointment     model.Appointment
	Ledger          model.Ledger
	ExpectedVersion int64
	IdempotencyKey  string
}

// Store is the persistence the service needs. CommitBooking must fail with
// ErrVersionConflict when the stored ledger version differs from ExpectedVersion.
type Store interface {
	LoadProfile(ctx context.Context, specialistID string) (availability.Profile, error)
	LoadLedger(ctx context.Context, specialistID string) (model.Ledger, error)
	LoadTreatment(ctx context.Context, specialistID, treatmentID string) (model.Treatment, error)
	FindIdempotent(ctx context.Context, specialistID, key string) (model.Appointment, bool, error)
	CommitBooking(ctx context.Context, w Write) error
}

// Locker serializes bookings per key.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type Service struct {
	engine  *Engine
	store   Store
	locker  Locker
	logger  *slog.Logger
	now     func() time.Time
	retries int
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithRetries(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

func NewService(engine *Engine, store Store, locker Locker, logger *slog.Logger, opts ...ServiceOption) *Service {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{engine: engine, store: store, locker: locker, logger: logger, now: time.Now, retries: 3}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) Now() time.Time { return s.now() }

// Validate checks a request against the current stored state without writing.
func (s *Service) Validate(ctx context.Context, req Request) (conflict.Verdict, error) {
	if err := s.resolveTreatment(ctx, &req); err != nil {
		return conflict.Verdict{}, err
	}
	profile, ledger, err := s.snapshot(ctx, req.SpecialistID)
	if err != nil {
		return conflict.Verdict{}, err
	}
	return s.engine.Validate(req, profile, ledger, s.now()), nil
}

// Book validates and commits under the specialist's lock, always against a
// freshly loaded ledger. A concurrent writer that slips past the lock is
// caught by the ledger version and the attempt is re-run.
func (s *Service) Book(ctx context.Context, req Request) (out Outcome, err error) {
	ctx, span := otelx.Start(ctx, "booking", "booking.book", trace.WithAttributes(
		attribute.String("specialist.id", req.SpecialistID),
		attribute.String("booking.date", req.Date.String()),
	))
	defer func() { otelx.Finish(span, err) }()

	if req.SpecialistID == "" {
		return Outcome{}, errors.New("specialist id required")
	}
	release, err := s.locker.Acquire(ctx, "booking:"+req.SpecialistID)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquire booking lock: %w", err)
	}
	defer release()

	if req.IdempotencyKey != "" {
		prev, ok, err := s.store.FindIdempotent(ctx, req.SpecialistID, req.IdempotencyKey)
		if err != nil {
			return Outcome{}, fmt.Errorf("idempotency lookup: %w", err)
		}
		if ok {
			return Outcome{Verdict: conflict.Accept(), Appointment: &prev, Replayed: true}, nil
		}
	}
	if err := s.resolveTreatment(ctx, &req); err != nil {
		return Outcome{}, err
	}

	for attempt := 1; attempt <= s.retries; attempt++ {
		profile, ledger, err := s.snapshot(ctx, req.SpecialistID)
		if err != nil {
			return Outcome{}, err
		}
		out = s.engine.Evaluate(req, profile, ledger, s.now())
		if !out.Verdict.OK {
			span.SetAttributes(attribute.String("booking.rejected", string(out.Verdict.Reason)))
			return out, nil
		}
		err = s.store.CommitBooking(ctx, Write{
			Appointment:     *out.Appointment,
			Ledger:          out.Ledger,
			ExpectedVersion: ledger.Version,
			IdempotencyKey:  req.IdempotencyKey,
		})
		if errors.Is(err, ErrVersionConflict) {
			s.logger.Warn("ledger changed during booking; retrying", "specialist_id", req.SpecialistID, "attempt", attempt)
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("commit booking: %w", err)
		}
		out.Ledger.Version = ledger.Version + 1
		s.logger.Info("appointment booked",
			"specialist_id", req.SpecialistID,
			"appointment_id", out.Appointment.ID,
			"date", out.Appointment.Metadata.Date.String(),
			"slot", out.Appointment.Metadata.Slot.String(),
			"duration", out.Appointment.Metadata.Duration,
		)
		return out, nil
	}
	return Outcome{}, ErrVersionConflict
}

func (s *Service) snapshot(ctx context.Context, specialistID string) (availability.Profile, model.Ledger, error) {
	profile, err := s.store.LoadProfile(ctx, specialistID)
	if err != nil {
		return availability.Profile{}, model.Ledger{}, fmt.Errorf("load profile: %w", err)
	}
	ledger, err := s.store.LoadLedger(ctx, specialistID)
	if err != nil {
		return availability.Profile{}, model.Ledger{}, fmt.Errorf("load ledger: %w", err)
	}
	return profile, ledger, nil
}

// resolveTreatment loads the treatment by id; an unknown id leaves it unset
// so the request is rejected as incomplete.
func (s *Service) resolveTreatment(ctx context.Context, req *Request) error {
	if req.Treatment != nil || req.TreatmentID == "" {
		return nil
	}
	t, err := s.store.LoadTreatment(ctx, req.SpecialistID, req.TreatmentID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load treatment: %w", err)
	}
	req.Treatment = &t
	return nil
}
