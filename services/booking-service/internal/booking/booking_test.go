package booking

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
)

var (
	monday = clock.MustDate("2025-03-10")
	now    = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
)

func slot(s string) *clock.TimeOfDay {
	t := clock.MustTime(s)
	return &t
}

func ls(start, end string) model.LedgerSlot {
	s, e := clock.MustTime(start), clock.MustTime(end)
	return model.LedgerSlot{Start: s, End: e, Duration: int(e - s)}
}

func TestSplitClipsLastSegment(t *testing.T) {
	got := Split(conflict.Candidate{Date: monday, Start: clock.MustTime("09:30"), DurationMinutes: 150})
	want := []model.LedgerSlot{ls("09:30", "10:30"), ls("10:30", "11:30"), ls("11:30", "12:00")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	total := 0
	for i, s := range got {
		total += s.Duration
		if s.Start.Add(s.Duration) != s.End {
			t.Fatalf("slot %d: start+duration must equal end", i)
		}
		if i > 0 && got[i-1].End != s.Start {
			t.Fatalf("gap or overlap between %v and %v", got[i-1], s)
		}
	}
	if total != 150 || Covered(got) != 150 {
		t.Fatalf("expected 150 covered minutes, got %d / %d", total, Covered(got))
	}

	got = Split(conflict.Candidate{Date: monday, Start: clock.MustTime("10:00"), DurationMinutes: 90})
	if !reflect.DeepEqual(got, []model.LedgerSlot{ls("10:00", "11:00"), ls("11:00", "11:30")}) {
		t.Fatalf("unexpected 90 minute split %v", got)
	}
}

func TestCommitMergesCopyOnWrite(t *testing.T) {
	ledger := model.Ledger{SpecialistID: "sp-1", Days: []model.BookedDay{
		{Date: monday.AddDays(1), Slots: []model.LedgerSlot{ls("09:00", "10:00")}},
	}}

	out := Commit(conflict.Candidate{Date: monday, Start: clock.MustTime("09:00"), DurationMinutes: 60}, ledger)
	if len(out.Days) != 2 || out.Days[0].Date != monday {
		t.Fatalf("expected new sorted date entry, got %+v", out.Days)
	}
	if !reflect.DeepEqual(out.For(monday), []model.LedgerSlot{ls("09:00", "10:00")}) {
		t.Fatalf("unexpected slots %v", out.For(monday))
	}
	if len(ledger.Days) != 1 {
		t.Fatal("Commit mutated the input ledger")
	}

	again := Commit(conflict.Candidate{Date: monday, Start: clock.MustTime("09:00"), DurationMinutes: 120}, out)
	want := []model.LedgerSlot{ls("09:00", "10:00"), ls("10:00", "11:00")}
	if !reflect.DeepEqual(again.For(monday), want) {
		t.Fatalf("expected duplicate skipped and new slot appended, got %v", again.For(monday))
	}
	if len(out.For(monday)) != 1 {
		t.Fatal("second Commit mutated the first result")
	}
}

func testProfile() availability.Profile {
	return availability.Profile{
		SpecialistID:   "sp-1",
		FirstVisitDate: clock.MustDate("2025-03-03"),
		Weeks: []availability.WeekRule{{
			StartDate: clock.MustDate("2025-03-03"), EndDate: clock.MustDate("2025-03-09"),
			IsWorking: true, IsRecurring: true,
			Windows: []clock.Range{{Start: clock.MustTime("09:00"), End: clock.MustTime("12:00")}},
		}},
	}
}

func testService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.PutProfile(testProfile())
	store.PutTreatment(model.Treatment{ID: "tr-1", SpecialistID: "sp-1", Name: "Consultation", DurationMinutes: 60})
	engine := NewEngine(availability.NewResolver(0, availability.DefaultFallback()), conflict.NewDetector(conflict.DefaultPolicy()))
	svc := NewService(engine, store, NewKeyedMutex(), nil, WithClock(func() time.Time { return now }))
	return svc, store
}

func TestServiceCleanBooking(t *testing.T) {
	svc, store := testService(t)
	out, err := svc.Book(context.Background(), Request{
		SpecialistID: "sp-1", TreatmentID: "tr-1", Date: monday, Slot: slot("09:00"), Duration: 60,
		Patient: &model.Patient{Name: "Ada", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !out.Verdict.OK || out.Appointment == nil {
		t.Fatalf("expected booking, got %+v", out.Verdict)
	}
	if out.Appointment.Patient.ID == "" || out.Appointment.Treatment.Name != "Consultation" {
		t.Fatalf("unexpected appointment %+v", out.Appointment)
	}
	ledger, _ := store.LoadLedger(context.Background(), "sp-1")
	if ledger.Version != 1 || len(ledger.Days) != 1 {
		t.Fatalf("unexpected stored ledger %+v", ledger)
	}
	if !reflect.DeepEqual(ledger.For(monday), []model.LedgerSlot{ls("09:00", "10:00")}) {
		t.Fatalf("unexpected ledger slots %v", ledger.For(monday))
	}
}

func TestServiceRejectsOverlap(t *testing.T) {
	svc, store := testService(t)
	store.PutLedger(model.Ledger{SpecialistID: "sp-1", Days: []model.BookedDay{{Date: monday, Slots: []model.LedgerSlot{ls("10:15", "10:45")}}}})

	out, err := svc.Book(context.Background(), Request{
		SpecialistID: "sp-1", TreatmentID: "tr-1", Date: monday, Slot: slot("10:00"), Duration: 30,
		Patient: &model.Patient{ID: "p-1"},
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if out.Verdict.OK || out.Verdict.Reason != conflict.SlotAlreadyBooked {
		t.Fatalf("expected SlotAlreadyBooked, got %+v", out.Verdict)
	}
	if len(store.Appointments("sp-1")) != 0 {
		t.Fatal("a rejection must not write")
	}
}

func TestServiceSerializesConcurrentBookings(t *testing.T) {
	svc, store := testService(t)
	const n = 8
	var wg sync.WaitGroup
	results := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Book(context.Background(), Request{
				SpecialistID: "sp-1", TreatmentID: "tr-1", Date: monday, Slot: slot("09:00"), Duration: 60,
				Patient: &model.Patient{ID: "p-1"},
			})
			if err != nil {
				t.Errorf("Book: %v", err)
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, r := range results {
		if r.Verdict.OK {
			ok++
		} else if r.Verdict.Reason != conflict.SlotAlreadyBooked {
			t.Fatalf("unexpected rejection %+v", r.Verdict)
		}
	}
	if ok != 1 || len(store.Appointments("sp-1")) != 1 {
		t.Fatalf("expected exactly one booking, got %d ok / %d stored", ok, len(store.Appointments("sp-1")))
	}
}

type racingStore struct {
	*MemoryStore
	once sync.Once
}

// CommitBooking simulates another writer landing first on the initial attempt.
func (r *racingStore) CommitBooking(ctx context.Context, w Write) error {
	var raced bool
	r.once.Do(func() {
		l, _ := r.MemoryStore.LoadLedger(ctx, "sp-1")
		l.Days = append(l.Days, model.BookedDay{Date: monday, Slots: []model.LedgerSlot{ls("09:00", "10:00")}})
		l.Version++
		r.MemoryStore.PutLedger(l)
		raced = true
	})
	if raced {
		return ErrVersionConflict
	}
	return r.MemoryStore.CommitBooking(ctx, w)
}

func TestServiceRevalidatesAfterVersionConflict(t *testing.T) {
	mem := NewMemoryStore()
	mem.PutProfile(testProfile())
	store := &racingStore{MemoryStore: mem}
	engine := NewEngine(availability.NewResolver(0, nil), conflict.NewDetector(conflict.DefaultPolicy()))
	svc := NewService(engine, store, nil, nil, WithClock(func() time.Time { return now }))

	out, err := svc.Book(context.Background(), Request{
		SpecialistID: "sp-1", Treatment: &model.Treatment{ID: "tr-1", DurationMinutes: 60},
		Date: monday, Slot: slot("09:00"), Patient: &model.Patient{ID: "p-1"},
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if out.Verdict.Reason != conflict.SlotAlreadyBooked {
		t.Fatalf("expected the retry to see the competing booking, got %+v", out.Verdict)
	}
}

func TestServiceIdempotencyReplay(t *testing.T) {
	svc, store := testService(t)
	req := Request{
		SpecialistID: "sp-1", TreatmentID: "tr-1", Date: monday, Slot: slot("11:00"), Duration: 30,
		Patient: &model.Patient{ID: "p-1"}, IdempotencyKey: "key-1",
	}
	first, err := svc.Book(context.Background(), req)
	if err != nil || !first.Verdict.OK {
		t.Fatalf("first booking failed: %v %+v", err, first.Verdict)
	}
	second, err := svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Appointment.ID != first.Appointment.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Appointment.ID, second)
	}
	if len(store.Appointments("sp-1")) != 1 {
		t.Fatal("replay must not book twice")
	}
}

func TestServiceMissingProfileIsFault(t *testing.T) {
	engine := NewEngine(availability.NewResolver(0, nil), conflict.NewDetector(conflict.DefaultPolicy()))
	svc := NewService(engine, NewMemoryStore(), nil, nil)
	_, err := svc.Book(context.Background(), Request{SpecialistID: "nobody"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestCheck(t *testing.T) {
	tr := &model.Treatment{ID: "tr-1", DurationMinutes: 45}
	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"no treatment", Request{}, "treatment"},
		{"no date", Request{Treatment: tr}, "date"},
		{"no slot", Request{Treatment: tr, Date: monday}, "slot"},
		{"no duration", Request{Treatment: &model.Treatment{ID: "x"}, Date: monday, Slot: slot("09:00")}, "duration"},
		{"no patient", Request{Treatment: tr, Date: monday, Slot: slot("09:00")}, "patient"},
		{"blank name", Request{Treatment: tr, Date: monday, Slot: slot("09:00"), Patient: &model.Patient{Name: "  "}}, "patient.name"},
		{"bad email", Request{Treatment: tr, Date: monday, Slot: slot("09:00"), Patient: &model.Patient{Name: "Ada", Email: "nope"}}, "patient.email"},
		{"bad phone", Request{Treatment: tr, Date: monday, Slot: slot("09:00"), Patient: &model.Patient{Name: "Ada", Phone: "12"}}, "patient.phone"},
	}
	for _, tc := range cases {
		v, ok := tc.req.Check()
		if ok || v.Reason != conflict.IncompleteInput || v.Field != tc.field {
			t.Fatalf("%s: expected IncompleteInput on %s, got %+v", tc.name, tc.field, v)
		}
	}

	req := Request{Treatment: tr, Date: monday, Slot: slot("09:00"), Patient: &model.Patient{Name: "Ada", Phone: "+44 20 7946 0958"}}
	if v, ok := req.Check(); !ok {
		t.Fatalf("expected complete request, got %+v", v)
	}
	if req.Candidate().DurationMinutes != 45 {
		t.Fatal("duration should default to the treatment's length")
	}
}

type stubBooker struct {
	outs []Outcome
	err  error
	reqs []Request
}

func (s *stubBooker) Book(_ context.Context, req Request) (Outcome, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return Outcome{}, s.err
	}
	out := s.outs[0]
	s.outs = s.outs[1:]
	return out, nil
}

func TestFlowHappyPath(t *testing.T) {
	f := NewFlow("sp-1")
	if f.State() != SelectingTreatment {
		t.Fatalf("unexpected initial state %s", f.State())
	}
	if err := f.SelectSlot(clock.MustTime("09:00"), 60); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("slot before treatment must fail, got %v", err)
	}
	steps := []struct {
		do   func() error
		want State
	}{
		{func() error { return f.SelectTreatment(model.Treatment{ID: "tr-1"}) }, SelectingDate},
		{func() error { return f.SelectDate(monday) }, SelectingSlot},
		{func() error { return f.SelectSlot(clock.MustTime("09:00"), 60) }, SelectingPatient},
		{func() error { return f.SelectPatient(model.Patient{ID: "p-1"}) }, SelectingPatient},
	}
	for i, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if f.State() != s.want {
			t.Fatalf("step %d: expected %s, got %s", i, s.want, f.State())
		}
	}

	b := &stubBooker{outs: []Outcome{{Verdict: conflict.Accept(), Appointment: &model.Appointment{ID: "a-1"}}}}
	out, err := f.Submit(context.Background(), b)
	if err != nil || !out.Verdict.OK || f.State() != Committed {
		t.Fatalf("expected commit, got %v %+v %s", err, out, f.State())
	}
	if b.reqs[0].Slot == nil || *b.reqs[0].Slot != clock.MustTime("09:00") || b.reqs[0].SpecialistID != "sp-1" {
		t.Fatalf("unexpected submitted request %+v", b.reqs[0])
	}
	if _, err := f.Submit(context.Background(), b); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("committed flow must not resubmit, got %v", err)
	}
}

func TestFlowRejectionReturnsControl(t *testing.T) {
	f := NewFlow("sp-1")
	_ = f.SelectTreatment(model.Treatment{ID: "tr-1"})
	_ = f.SelectDate(monday)
	_ = f.SelectSlot(clock.MustTime("09:00"), 60)
	_ = f.SelectPatient(model.Patient{ID: "p-1"})

	b := &stubBooker{outs: []Outcome{
		{Verdict: conflict.Reject(conflict.SlotAlreadyBooked)},
		{Verdict: conflict.RejectField(conflict.IncompleteInput, "patient.email", "Email is not valid")},
		{Verdict: conflict.Accept()},
	}}

	if _, err := f.Submit(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if f.State() != Rejected || f.ResumeAt() != SelectingSlot {
		t.Fatalf("expected rejection back to slot, got %s / %s", f.State(), f.ResumeAt())
	}
	if err := f.SelectPatient(model.Patient{ID: "p-2"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("patient step is beyond the resume point, got %v", err)
	}
	if err := f.SelectSlot(clock.MustTime("10:00"), 60); err != nil {
		t.Fatal(err)
	}
	if f.State() != SelectingPatient {
		t.Fatalf("expected selecting patient, got %s", f.State())
	}

	if _, err := f.Submit(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if f.ResumeAt() != SelectingPatient {
		t.Fatalf("expected resume at patient, got %s", f.ResumeAt())
	}
	_ = f.SelectPatient(model.Patient{ID: "p-2"})
	if _, err := f.Submit(context.Background(), b); err != nil || f.State() != Committed {
		t.Fatalf("expected commit, got %v %s", err, f.State())
	}
}

func TestFlowFaultKeepsSelections(t *testing.T) {
	f := NewFlow("sp-1")
	_ = f.SelectTreatment(model.Treatment{ID: "tr-1"})
	boom := errors.New("db down")
	if _, err := f.Submit(context.Background(), &stubBooker{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected fault, got %v", err)
	}
	if f.State() != SelectingDate {
		t.Fatalf("fault should restore the previous state, got %s", f.State())
	}
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := NewKeyedMutex()
	release, err := k.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Acquire(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	other, err := k.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("independent key must not block: %v", err)
	}
	other()
	release()
	release()
	again, err := k.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	again()
}
