package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

// MemoryStore keeps everything in process. It backs the CLI and tests.
type MemoryStore struct {
	mu           sync.Mutex
	profiles     map[string]availability.Profile
	ledgers      map[string]model.Ledger
	treatments   map[string]model.Treatment
	appointments map[string][]model.Appointment
	idempotency  map[string]model.Appointment
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:     map[string]availability.Profile{},
		ledgers:      map[string]model.Ledger{},
		treatments:   map[string]model.Treatment{},
		appointments: map[string][]model.Appointment{},
		idempotency:  map[string]model.Appointment{},
		now:          time.Now,
	}
}

func (m *MemoryStore) PutProfile(p availability.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.SpecialistID] = p
}

func (m *MemoryStore) PutLedger(l model.Ledger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[l.SpecialistID] = l.Clone()
}

func (m *MemoryStore) PutTreatment(t model.Treatment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treatments[t.SpecialistID+"/"+t.ID] = t
}

func (m *MemoryStore) Appointments(specialistID string) []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Appointment(nil), m.appointments[specialistID]...)
}

func (m *MemoryStore) LoadProfile(_ context.Context, specialistID string) (availability.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[specialistID]
	if !ok {
		return availability.Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) LoadLedger(_ context.Context, specialistID string) (model.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[specialistID]
	if !ok {
		return model.Ledger{SpecialistID: specialistID}, nil
	}
	return l.Clone(), nil
}

func (m *MemoryStore) LoadTreatment(_ context.Context, specialistID, treatmentID string) (model.Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.treatments[specialistID+"/"+treatmentID]
	if !ok {
		return model.Treatment{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) FindIdempotent(_ context.Context, specialistID, key string) (model.Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.idempotency[specialistID+"/"+key]
	return a, ok, nil
}

func (m *MemoryStore) CommitBooking(_ context.Context, w Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := w.Appointment.SpecialistID
	if m.ledgers[id].Version != w.ExpectedVersion {
		return ErrVersionConflict
	}
	l := w.Ledger.Clone()
	l.SpecialistID = id
	l.Version = w.ExpectedVersion + 1
	m.ledgers[id] = l
	m.appointments[id] = append(m.appointments[id], w.Appointment)
	if w.IdempotencyKey != "" {
		m.idempotency[id+"/"+w.IdempotencyKey] = w.Appointment
	}
	return nil
}

func (m *MemoryStore) SaveProfile(_ context.Context, p availability.Profile, expectedVersion int64) (availability.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.profiles[p.SpecialistID]
	if expectedVersion != AnyVersion && cur.Version != expectedVersion {
		return availability.Profile{}, ErrVersionConflict
	}
	if !ok {
		cur.Version = 0
	}
	p.Version = cur.Version + 1
	p.UpdatedAt = m.now().UTC()
	m.profiles[p.SpecialistID] = p
	return p, nil
}

func (m *MemoryStore) ListTreatments(_ context.Context, specialistID string) ([]model.Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Treatment
	for _, t := range m.treatments {
		if t.SpecialistID == specialistID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryStore) CreateTreatment(_ context.Context, t model.Treatment) (model.Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treatments[t.SpecialistID+"/"+t.ID] = t
	return t, nil
}

func (m *MemoryStore) ListAppointments(_ context.Context, specialistID string, date clock.Date) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appointments[specialistID] {
		if a.Metadata.Date == date {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.Slot < out[j].Metadata.Slot })
	return out, nil
}
