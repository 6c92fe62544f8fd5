// Package schedulingtest provides an in-memory scheduling.Store for tests.
package schedulingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/pitch-booking/internal/model"
	"github.com/iliyamo/pitch-booking/internal/queue"
	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

// User is the display data joined into appointment views.
type User struct {
	FirstName string
	LastName  string
	Email     string
}

// MemStore keeps fields, users and appointments in maps.  RunInTx holds a
// single mutex for the whole unit of work and restores the previous state
// when fn fails, which gives the same isolation as a per-field row lock.
type MemStore struct {
	mu     sync.Mutex
	fields map[uint64]model.Field
	users  map[uint64]User
	appts  map[uint64]model.Appointment
	nextID uint64

	// ConflictsToInject makes the next N RunInTx calls fail with
	// scheduling.ErrStoreConflict before fn runs.
	ConflictsToInject int
	// TxCalls counts RunInTx invocations.
	TxCalls int
}

func NewMemStore() *MemStore {
	return &MemStore{
		fields: map[uint64]model.Field{},
		users:  map[uint64]User{},
		appts:  map[uint64]model.Appointment{},
	}
}

func (m *MemStore) AddField(f model.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f.ID] = f
}

func (m *MemStore) AddUser(id uint64, u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = u
}

// Seed stores a directly, bypassing every rule.  A zero ID is assigned.
func (m *MemStore) Seed(a model.Appointment) model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextID++
		a.ID = m.nextID
	} else if a.ID > m.nextID {
		m.nextID = a.ID
	}
	m.appts[a.ID] = a
	return a
}

// All returns a snapshot of every stored appointment ordered by id.
func (m *MemStore) All() []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) GetField(_ context.Context, id uint64) (model.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fields[id]
	if !ok {
		return model.Field{}, scheduling.ErrNotFound
	}
	return f, nil
}

func (m *MemStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TxCalls++
	if m.ConflictsToInject > 0 {
		m.ConflictsToInject--
		return scheduling.ErrStoreConflict
	}

	saved := make(map[uint64]model.Appointment, len(m.appts))
	for k, v := range m.appts {
		saved[k] = v
	}
	savedID := m.nextID
	if err := fn(ctx, memTx{m}); err != nil {
		m.appts, m.nextID = saved, savedID
		return err
	}
	return nil
}

func (m *MemStore) GetView(_ context.Context, id uint64) (model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.AppointmentView{}, scheduling.ErrNotFound
	}
	return m.view(a), nil
}

func (m *MemStore) CountConflicts(_ context.Context, fieldID uint64, start, end time.Time, excludeID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(fieldID, start, end, excludeID), nil
}

func (m *MemStore) List(_ context.Context, f scheduling.ListFilter) ([]model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AppointmentView{}
	for _, a := range m.appts {
		if f.FieldID != 0 && a.FieldID != f.FieldID {
			continue
		}
		if f.UserID != 0 && a.UserID != f.UserID {
			continue
		}
		if !f.StartFrom.IsZero() && a.StartTime.Before(f.StartFrom) {
			continue
		}
		if !f.StartBefore.IsZero() && !a.StartTime.Before(f.StartBefore) {
			continue
		}
		out = append(out, m.view(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemStore) ListOverlapping(_ context.Context, fieldID uint64, from, to time.Time) ([]model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := scheduling.Interval{Start: from, End: to}
	out := []model.AppointmentView{}
	for _, a := range m.appts {
		if a.FieldID == fieldID && want.Overlaps(scheduling.Interval{Start: a.StartTime, End: a.EndTime}) {
			out = append(out, m.view(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *MemStore) countLocked(fieldID uint64, start, end time.Time, excludeID uint64) int {
	all := make([]model.Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		all = append(all, a)
	}
	n, _ := scheduling.Conflicts(all, fieldID, start, end, excludeID)
	return n
}

func (m *MemStore) view(a model.Appointment) model.AppointmentView {
	u := m.users[a.UserID]
	return model.AppointmentView{
		Appointment:   a,
		FieldName:     m.fields[a.FieldID].Name,
		UserFirstName: u.FirstName,
		UserLastName:  u.LastName,
		UserEmail:     u.Email,
	}
}

// memTx runs with MemStore.mu already held.
type memTx struct{ m *MemStore }

func (t memTx) LockField(_ context.Context, fieldID uint64) (model.Field, error) {
	f, ok := t.m.fields[fieldID]
	if !ok {
		return model.Field{}, scheduling.ErrNotFound
	}
	return f, nil
}

func (t memTx) GetForUpdate(_ context.Context, id uint64) (model.Appointment, error) {
	a, ok := t.m.appts[id]
	if !ok {
		return model.Appointment{}, scheduling.ErrNotFound
	}
	return a, nil
}

func (t memTx) CountConflicts(_ context.Context, fieldID uint64, start, end time.Time, excludeID uint64) (int, error) {
	return t.m.countLocked(fieldID, start, end, excludeID), nil
}

func (t memTx) Insert(_ context.Context, a *model.Appointment) error {
	t.m.nextID++
	a.ID = t.m.nextID
	t.m.appts[a.ID] = *a
	return nil
}

func (t memTx) Update(_ context.Context, a *model.Appointment) error {
	if _, ok := t.m.appts[a.ID]; !ok {
		return scheduling.ErrNotFound
	}
	t.m.appts[a.ID] = *a
	return nil
}

func (t memTx) Delete(_ context.Context, id uint64) error {
	if _, ok := t.m.appts[id]; !ok {
		return scheduling.ErrNotFound
	}
	delete(t.m.appts, id)
	return nil
}

// Recorder captures published events.
type Recorder struct {
	mu     sync.Mutex
	events []queue.AppointmentEvent
}

func (r *Recorder) Publish(_ context.Context, ev queue.AppointmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Types returns the event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *Recorder) Events() []queue.AppointmentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.AppointmentEvent(nil), r.events...)
}
