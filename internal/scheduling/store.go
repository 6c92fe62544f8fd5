package scheduling

import (
	"context"
	"time"

	"github.com/iliyamo/pitch-booking/internal/model"
	"github.com/iliyamo/pitch-booking/internal/queue"
)

// FieldCatalog resolves fields by id.  It returns ErrNotFound for unknown ids.
type FieldCatalog interface {
	GetField(ctx context.Context, id uint64) (model.Field, error)
}

// ListFilter narrows an appointment listing.  Zero values mean "any".
// StartFrom is inclusive and StartBefore exclusive.
type ListFilter struct {
	FieldID     uint64
	UserID      uint64
	StartFrom   time.Time
	StartBefore time.Time
}

// Store is the authoritative appointment storage.  Reads run outside any
// transaction; writes go through RunInTx.
type Store interface {
	// RunInTx executes fn inside one serializable unit of work and commits
	// when fn returns nil.  Lost races surface as ErrStoreConflict.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetView(ctx context.Context, id uint64) (model.AppointmentView, error)
	CountConflicts(ctx context.Context, fieldID uint64, start, end time.Time, excludeID uint64) (int, error)
	List(ctx context.Context, f ListFilter) ([]model.AppointmentView, error)
	// ListOverlapping returns appointments on fieldID intersecting
	// [from, to), ordered by start.
	ListOverlapping(ctx context.Context, fieldID uint64, from, to time.Time) ([]model.AppointmentView, error)
}

// Tx is the write side of Store, valid only inside RunInTx.
type Tx interface {
	// LockField loads the field and holds a write lock on it until the
	// transaction ends, serialising every writer for that field.
	LockField(ctx context.Context, fieldID uint64) (model.Field, error)
	GetForUpdate(ctx context.Context, id uint64) (model.Appointment, error)
	CountConflicts(ctx context.Context, fieldID uint64, start, end time.Time, excludeID uint64) (int, error)
	Insert(ctx context.Context, a *model.Appointment) error
	Update(ctx context.Context, a *model.Appointment) error
	Delete(ctx context.Context, id uint64) error
}

// EventPublisher delivers appointment lifecycle events.  Failures never
// fail the request that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AppointmentEvent) error
}

// SlotKey identifies a cached slot search by its stable query parameters.
type SlotKey struct {
	FieldID  uint64
	Date     string // YYYY-MM-DD in the scheduling timezone
	Duration time.Duration
}

// SlotCache stores slot search results.  Implementations must drop every
// entry of a field on Invalidate.
//
// GetSlots also returns the field's cache version as seen before the
// search reads the store.  PutSlots files the result under that version,
// so a result computed before an Invalidate is never served after it.  A
// negative version means the cache could not be read and PutSlots must
// store nothing.
type SlotCache interface {
	GetSlots(ctx context.Context, key SlotKey) (res SlotSearch, version int64, hit bool)
	PutSlots(ctx context.Context, key SlotKey, version int64, res SlotSearch)
	Invalidate(ctx context.Context, fieldID uint64)
}
