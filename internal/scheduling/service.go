package scheduling

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/pitch-booking/internal/model"
	"github.com/iliyamo/pitch-booking/internal/observability/metrics"
	"github.com/iliyamo/pitch-booking/internal/queue"
)

var tracer = otel.Tracer("pitch.internal.scheduling")

// Options tunes the scheduling rules.  Clock values are offsets from
// local midnight in Location.
type Options struct {
	Location    *time.Location
	WindowStart time.Duration
	WindowEnd   time.Duration
	SlotStep    time.Duration
	MaxSlots    int
	// UpdateRejectsPast applies the "start must not be in the past" rule
	// to updates as well as creates.
	UpdateRejectsPast bool
	// ConflictRetries is how many times a write transaction is re-run
	// after losing a race before ErrStoreConflict is surfaced.
	ConflictRetries int
}

// DefaultOptions returns the 06:00-22:00 UTC window with hourly steps and
// at most 20 suggestions.
func DefaultOptions() Options {
	return Options{
		Location:        time.UTC,
		WindowStart:     6 * time.Hour,
		WindowEnd:       22 * time.Hour,
		SlotStep:        time.Hour,
		MaxSlots:        20,
		ConflictRetries: 3,
	}
}

// Service implements the booking rules on top of a Store.
type Service struct {
	store   Store
	fields  FieldCatalog
	events  EventPublisher
	cache   SlotCache
	opts    Options
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.SchedulingMetrics
}

// Option customises a Service.
type Option func(*Service)

// WithEvents publishes lifecycle events to p after each commit.
func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

// WithSlotCache caches AvailableSlots results in c.
func WithSlotCache(c SlotCache) Option { return func(s *Service) { s.cache = c } }

// WithLogger sets the service logger; the default is a no-op.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithMetrics records conflict, slot cache and slot search metrics in m.
func WithMetrics(m *metrics.SchedulingMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService builds a Service over store and fields.  A nil Location
// defaults to UTC.
func NewService(store Store, fields FieldCatalog, opts Options, extra ...Option) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SlotStep <= 0 {
		opts.SlotStep = defaultSlotStep
	}
	if opts.ConflictRetries < 0 {
		opts.ConflictRetries = 0
	}
	s := &Service{
		store:  store,
		fields: fields,
		opts:   opts,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, o := range extra {
		o(s)
	}
	if s.events == nil {
		s.events = queue.NopPublisher{}
	}
	return s
}

// Location is the timezone calendar dates and clock times are read in.
func (s *Service) Location() *time.Location { return s.opts.Location }

// CreateInput is a new booking request.  The owner is always the caller.
type CreateInput struct {
	FieldID uint64
	Start   time.Time
	End     time.Time
}

// Create books [Start, End) on the field for the caller.  The overlap
// check and the insert run in one transaction that holds the field lock.
func (s *Service) Create(ctx context.Context, who Identity, in CreateInput) (view model.AppointmentView, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.create", trace.WithAttributes(
		attribute.Int64("pitch.field_id", int64(in.FieldID)),
		attribute.Int64("pitch.user_id", int64(who.UserID)),
	))
	defer func() { s.finish(span, "create", err) }()

	if in.FieldID == 0 {
		return view, invalid("field is required")
	}
	if !in.End.After(in.Start) {
		return view, invalid("end time must be after start time")
	}
	now := s.now()
	if in.Start.Before(now) {
		return view, invalid("cannot book appointments in the past")
	}

	var (
		appt  model.Appointment
		field model.Field
	)
	err = s.inTx(ctx, "create", func(ctx context.Context, tx Tx) error {
		f, err := tx.LockField(ctx, in.FieldID)
		if err != nil {
			return err
		}
		n, err := tx.CountConflicts(ctx, in.FieldID, in.Start, in.End, 0)
		if err != nil {
			return err
		}
		if n > 0 {
			s.metrics.ObserveConflict()
			return &ValidationError{Reason: "time slot conflicts with existing appointments", Conflicts: n}
		}
		cost := Cost(in.Start, in.End, f.HourlyPrice)
		if cost.GreaterThan(maxCost) {
			return invalid("total cost %s exceeds the storable maximum", cost.StringFixed(CostScale))
		}
		appt = model.Appointment{
			UserID:    who.UserID,
			FieldID:   in.FieldID,
			StartTime: in.Start.UTC(),
			EndTime:   in.End.UTC(),
			TotalCost: cost,
			CreatedAt: now.UTC(),
		}
		field = f
		return tx.Insert(ctx, &appt)
	})
	if err != nil {
		return view, err
	}

	s.afterWrite(ctx, queue.EventCreated, appt, field.Name, who.UserID, appt.FieldID)
	return s.viewAfterWrite(ctx, appt, field.Name), nil
}

// UpdateInput is a partial update; nil members keep their current value.
type UpdateInput struct {
	FieldID *uint64
	UserID  *uint64
	Start   *time.Time
	End     *time.Time
}

// Update merges in into the stored appointment and re-validates the
// result against every other booking of the (possibly new) field.  Only
// the owner or an admin may update, and only an admin may hand the
// booking to another user.
func (s *Service) Update(ctx context.Context, who Identity, id uint64, in UpdateInput) (view model.AppointmentView, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.update", trace.WithAttributes(
		attribute.Int64("pitch.appointment_id", int64(id)),
		attribute.Int64("pitch.user_id", int64(who.UserID)),
	))
	defer func() { s.finish(span, "update", err) }()

	var (
		appt     model.Appointment
		field    model.Field
		oldField uint64
	)
	err = s.inTx(ctx, "update", func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !who.CanManage(cur.UserID) {
			return ErrForbidden
		}
		if in.UserID != nil && *in.UserID != cur.UserID && !who.IsAdmin {
			return ErrForbidden
		}
		oldField = cur.FieldID

		next := cur
		if in.FieldID != nil {
			if *in.FieldID == 0 {
				return invalid("field is required")
			}
			next.FieldID = *in.FieldID
		}
		if in.UserID != nil {
			next.UserID = *in.UserID
		}
		if in.Start != nil {
			next.StartTime = in.Start.UTC()
		}
		if in.End != nil {
			next.EndTime = in.End.UTC()
		}
		if !next.EndTime.After(next.StartTime) {
			return invalid("end time must be after start time")
		}
		if s.opts.UpdateRejectsPast && next.StartTime.Before(s.now()) {
			return invalid("cannot book appointments in the past")
		}

		f, err := tx.LockField(ctx, next.FieldID)
		if err != nil {
			return err
		}
		n, err := tx.CountConflicts(ctx, next.FieldID, next.StartTime, next.EndTime, id)
		if err != nil {
			return err
		}
		if n > 0 {
			s.metrics.ObserveConflict()
			return &ValidationError{Reason: "time slot conflicts with existing appointments", Conflicts: n}
		}
		next.TotalCost = Cost(next.StartTime, next.EndTime, f.HourlyPrice)
		if next.TotalCost.GreaterThan(maxCost) {
			return invalid("total cost %s exceeds the storable maximum", next.TotalCost.StringFixed(CostScale))
		}
		if err := tx.Update(ctx, &next); err != nil {
			return err
		}
		appt, field = next, f
		return nil
	})
	if err != nil {
		return view, err
	}

	s.afterWrite(ctx, queue.EventUpdated, appt, field.Name, who.UserID, oldField, appt.FieldID)
	return s.viewAfterWrite(ctx, appt, field.Name), nil
}

// Delete cancels an appointment.  Only its owner or an admin may do so.
func (s *Service) Delete(ctx context.Context, who Identity, id uint64) (err error) {
	ctx, span := tracer.Start(ctx, "scheduling.delete", trace.WithAttributes(
		attribute.Int64("pitch.appointment_id", int64(id)),
		attribute.Int64("pitch.user_id", int64(who.UserID)),
	))
	defer func() { s.finish(span, "delete", err) }()

	var gone model.Appointment
	err = s.inTx(ctx, "delete", func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !who.CanManage(cur.UserID) {
			return ErrForbidden
		}
		gone = cur
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	name := ""
	if f, ferr := s.fields.GetField(ctx, gone.FieldID); ferr == nil {
		name = f.Name
	}
	s.afterWrite(ctx, queue.EventCancelled, gone, name, who.UserID, gone.FieldID)
	return nil
}

// Get returns one appointment to its owner, an admin or the owner of the
// booked field.
func (s *Service) Get(ctx context.Context, who Identity, id uint64) (model.AppointmentView, error) {
	v, err := s.store.GetView(ctx, id)
	if err != nil {
		return v, err
	}
	if who.CanManage(v.UserID) {
		return v, nil
	}
	f, err := s.fields.GetField(ctx, v.FieldID)
	if err != nil {
		return model.AppointmentView{}, err
	}
	if f.OwnerID != who.UserID {
		return model.AppointmentView{}, ErrForbidden
	}
	return v, nil
}

// ListForUser returns the caller's own appointments ordered by creation
// time.  With upcomingOnly set, appointments that already started are
// left out.
func (s *Service) ListForUser(ctx context.Context, who Identity, upcomingOnly bool) ([]model.AppointmentView, error) {
	f := ListFilter{UserID: who.UserID}
	if upcomingOnly {
		f.StartFrom = s.now()
	}
	return s.store.List(ctx, f)
}

// ListQuery narrows List.  Date, when set, selects appointments starting
// on that calendar day in the scheduling timezone.
type ListQuery struct {
	FieldID  uint64
	Date     *time.Time
	Upcoming bool
}

// List returns the appointments visible to the caller.  Admins see every
// booking, the owner of the requested field sees all of that field's
// bookings and everybody else sees only their own.
func (s *Service) List(ctx context.Context, who Identity, q ListQuery) ([]model.AppointmentView, error) {
	f := ListFilter{FieldID: q.FieldID}
	if !who.IsAdmin {
		f.UserID = who.UserID
		if q.FieldID != 0 {
			field, err := s.fields.GetField(ctx, q.FieldID)
			if err != nil {
				return nil, err
			}
			if field.OwnerID == who.UserID {
				f.UserID = 0
			}
		}
	}
	if q.Date != nil {
		f.StartFrom, f.StartBefore = DayBounds(*q.Date, s.opts.Location)
	}
	if q.Upcoming {
		if now := s.now(); now.After(f.StartFrom) {
			f.StartFrom = now
		}
	}
	return s.store.List(ctx, f)
}

// RangeCheck is the answer to "is this range free?".
type RangeCheck struct {
	Available bool
	Conflicts int
}

// CheckRange combines day with the two clock offsets in the scheduling
// timezone and counts the bookings of fieldID overlapping the result.
func (s *Service) CheckRange(ctx context.Context, fieldID uint64, day time.Time, from, to time.Duration) (RangeCheck, error) {
	if _, err := s.fields.GetField(ctx, fieldID); err != nil {
		return RangeCheck{}, err
	}
	start := AtClock(day, from, s.opts.Location)
	end := AtClock(day, to, s.opts.Location)
	if !end.After(start) {
		return RangeCheck{}, invalid("end time must be after start time")
	}
	n, err := s.store.CountConflicts(ctx, fieldID, start, end, 0)
	if err != nil {
		return RangeCheck{}, err
	}
	return RangeCheck{Available: n == 0, Conflicts: n}, nil
}

// BusyDay lists the bookings that start on one calendar day.
type BusyDay struct {
	FieldName string
	Date      time.Time
	Slots     []BusySlot
}

// BusySlots returns the bookings of fieldID starting on day, ordered by
// start, each labelled with its owner's display name.
func (s *Service) BusySlots(ctx context.Context, fieldID uint64, day time.Time) (BusyDay, error) {
	f, err := s.fields.GetField(ctx, fieldID)
	if err != nil {
		return BusyDay{}, err
	}
	from, to := DayBounds(day, s.opts.Location)
	views, err := s.store.List(ctx, ListFilter{FieldID: fieldID, StartFrom: from, StartBefore: to})
	if err != nil {
		return BusyDay{}, err
	}
	sortViewsByStart(views)
	out := BusyDay{FieldName: f.Name, Date: from, Slots: make([]BusySlot, 0, len(views))}
	for _, v := range views {
		out.Slots = append(out.Slots, BusySlot{Start: v.StartTime, End: v.EndTime, User: v.UserDisplayName()})
	}
	return out, nil
}

// SlotSearch is the result of AvailableSlots.
type SlotSearch struct {
	FieldName         string
	Date              time.Time
	RequestedDuration float64
	Slots             []AvailableSlot
}

// AvailableSlots suggests ranges of the requested duration inside the
// configured daily window of day.  Bookings that spill over from the
// previous day are treated as busy too.
func (s *Service) AvailableSlots(ctx context.Context, fieldID uint64, day time.Time, duration time.Duration) (res SlotSearch, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.available_slots", trace.WithAttributes(
		attribute.Int64("pitch.field_id", int64(fieldID)),
		attribute.String("pitch.duration", duration.String()),
	))
	defer func() { s.finish(span, "available_slots", err) }()

	if duration <= 0 {
		return res, invalid("duration must be positive")
	}
	started := time.Now()
	dayStart, dayEnd := DayBounds(day, s.opts.Location)
	key := SlotKey{FieldID: fieldID, Date: dayStart.Format("2006-01-02"), Duration: duration}
	version := int64(-1)
	if s.cache != nil {
		cached, ver, ok := s.cache.GetSlots(ctx, key)
		if ok {
			s.metrics.ObserveSlotCache(true)
			return cached, nil
		}
		s.metrics.ObserveSlotCache(false)
		version = ver
	}

	f, err := s.fields.GetField(ctx, fieldID)
	if err != nil {
		return res, err
	}
	views, err := s.store.ListOverlapping(ctx, fieldID, dayStart, dayEnd)
	if err != nil {
		return res, err
	}
	busy := make([]Interval, 0, len(views))
	for _, v := range views {
		busy = append(busy, Interval{Start: v.StartTime.In(s.opts.Location), End: v.EndTime.In(s.opts.Location)})
	}
	res = SlotSearch{
		FieldName:         f.Name,
		Date:              dayStart,
		RequestedDuration: duration.Hours(),
		Slots: FindSlots(busy, SlotQuery{
			WindowStart: AtClock(dayStart, s.opts.WindowStart, s.opts.Location),
			WindowEnd:   AtClock(dayStart, s.opts.WindowEnd, s.opts.Location),
			Duration:    duration,
			Step:        s.opts.SlotStep,
			Limit:       s.opts.MaxSlots,
		}),
	}
	s.metrics.ObserveSlotSearch(time.Since(started).Seconds())
	if s.cache != nil {
		s.cache.PutSlots(ctx, key, version, res)
	}
	return res, nil
}

// inTx runs fn through the store, re-running it when the transaction is
// aborted by a deadlock or lock wait timeout.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.opts.ConflictRetries; attempt++ {
		if attempt > 0 {
			s.metrics.ObserveRetry(op)
			s.log.Debug("retrying write transaction", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		err = s.store.RunInTx(ctx, fn)
		if !errors.Is(err, ErrStoreConflict) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Service) afterWrite(ctx context.Context, kind string, a model.Appointment, fieldName string, actor uint64, fieldIDs ...uint64) {
	if s.cache != nil {
		seen := map[uint64]bool{}
		for _, id := range fieldIDs {
			if !seen[id] {
				seen[id] = true
				s.cache.Invalidate(ctx, id)
			}
		}
	}

	ev := queue.NewAppointmentEvent(kind, s.now())
	ev.AppointmentID = a.ID
	ev.UserID = a.UserID
	ev.FieldID = a.FieldID
	ev.FieldName = fieldName
	ev.StartTime = a.StartTime.UTC().Format(time.RFC3339)
	ev.EndTime = a.EndTime.UTC().Format(time.RFC3339)
	ev.TotalCost = a.TotalCost.StringFixed(CostScale)
	ev.ActorID = actor
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("appointment event dropped",
			zap.String("event_type", kind),
			zap.Uint64("appointment_id", a.ID),
			zap.Error(err))
	}
}

// viewAfterWrite reloads the committed row with its joined names.  The
// write already succeeded, so a failed read degrades to the bare row.
func (s *Service) viewAfterWrite(ctx context.Context, a model.Appointment, fieldName string) model.AppointmentView {
	v, err := s.store.GetView(ctx, a.ID)
	if err != nil {
		s.log.Warn("reload after write failed", zap.Uint64("appointment_id", a.ID), zap.Error(err))
		return model.AppointmentView{Appointment: a, FieldName: fieldName}
	}
	return v
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := Outcome(err)
	s.metrics.ObserveOperation(op, outcome)
	span.SetAttributes(attribute.String("pitch.outcome", outcome))
	if outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("scheduling operation failed", zap.String("op", op), zap.Error(err))
	}
	span.End()
}

func sortViewsByStart(v []model.AppointmentView) {
	sort.SliceStable(v, func(i, j int) bool { return v[i].StartTime.Before(v[j].StartTime) })
}
