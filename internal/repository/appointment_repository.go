package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/pitch-booking/internal/model"
	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

// AppointmentRepo stores appointments in the appointments table.  Reads
// join fields and users for display names.  Writes only happen inside
// RunInTx.  All timestamp columns are DATETIME(6) in UTC; the DSN must
// carry parseTime=true&loc=UTC.
type AppointmentRepo struct {
	db *sql.DB
}

// NewAppointmentRepo returns a new AppointmentRepo bound to the given database.
func NewAppointmentRepo(db *sql.DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

var _ scheduling.Store = (*AppointmentRepo)(nil)

const appointmentColumns = `id, user_id, field_id, start_time, end_time, created_at, total_cost`

const viewSelect = `SELECT a.id, a.user_id, a.field_id, a.start_time, a.end_time, a.created_at, a.total_cost,
	f.name, u.first_name, u.last_name, u.email
FROM appointments a
JOIN fields f ON f.id = a.field_id
JOIN users u ON u.id = a.user_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s rowScanner) (model.Appointment, error) {
	var a model.Appointment
	err := s.Scan(&a.ID, &a.UserID, &a.FieldID, &a.StartTime, &a.EndTime, &a.CreatedAt, &a.TotalCost)
	return a, err
}

func scanView(s rowScanner) (model.AppointmentView, error) {
	var v model.AppointmentView
	var first, last, email sql.NullString
	err := s.Scan(
		&v.ID, &v.UserID, &v.FieldID, &v.StartTime, &v.EndTime, &v.CreatedAt, &v.TotalCost,
		&v.FieldName, &first, &last, &email,
	)
	v.UserFirstName, v.UserLastName, v.UserEmail = first.String, last.String, email.String
	return v, err
}

// RunInTx begins a transaction, hands it to fn and commits when fn
// returns nil.  Any error rolls the transaction back.
func (r *AppointmentRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", translate(err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &appointmentTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	committed = true
	return nil
}

// GetView loads one appointment with its field and owner names.
func (r *AppointmentRepo) GetView(ctx context.Context, id uint64) (model.AppointmentView, error) {
	v, err := scanView(r.db.QueryRowContext(ctx, viewSelect+` WHERE a.id = ?`, id))
	if err != nil {
		return model.AppointmentView{}, fmt.Errorf("get appointment %d: %w", id, translate(err))
	}
	return v, nil
}

// CountConflicts counts appointments on fieldID intersecting
// [start, end), skipping excludeID.  Ids start at 1 so 0 excludes nothing.
func (r *AppointmentRepo) CountConflicts(ctx context.Context, fieldID uint64, start, end time.Time, excludeID uint64) (int, error) {
	return countConflicts(ctx, r.db, false, fieldID, start, end, excludeID)
}

// List returns appointment views matching f, oldest booking first.
func (r *AppointmentRepo) List(ctx context.Context, f scheduling.ListFilter) ([]model.AppointmentView, error) {
	var (
		where []string
		args  []any
	)
	if f.FieldID != 0 {
		where = append(where, "a.field_id = ?")
		args = append(args, f.FieldID)
	}
	if f.UserID != 0 {
		where = append(where, "a.user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.StartFrom.IsZero() {
		where = append(where, "a.start_time >= ?")
		args = append(args, f.StartFrom.UTC())
	}
	if !f.StartBefore.IsZero() {
		where = append(where, "a.start_time < ?")
		args = append(args, f.StartBefore.UTC())
	}
	q := viewSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY a.created_at, a.id"
	return r.queryViews(ctx, q, args...)
}

// ListOverlapping returns the appointments of fieldID intersecting
// [from, to) ordered by start time.
func (r *AppointmentRepo) ListOverlapping(ctx context.Context, fieldID uint64, from, to time.Time) ([]model.AppointmentView, error) {
	q := viewSelect + ` WHERE a.field_id = ? AND a.start_time < ? AND a.end_time > ? ORDER BY a.start_time, a.id`
	return r.queryViews(ctx, q, fieldID, to.UTC(), from.UTC())
}

func (r *AppointmentRepo) queryViews(ctx context.Context, q string, args ...any) ([]model.AppointmentView, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", translate(err))
	}
	defer rows.Close()
	out := []model.AppointmentView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list appointments: %w", translate(err))
	}
	return out, nil
}

// querier is the part of *sql.DB and *sql.Tx used for reads.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countConflicts(ctx context.Context, q querier, locking bool, fieldID uint64, start, end time.Time, excludeID uint64) (int, error) {
	query := `SELECT COUNT(*) FROM appointments
		WHERE field_id = ? AND start_time < ? AND end_time > ? AND id <> ?`
	if locking {
		// A locking read sees the latest committed rows regardless of
		// when the transaction snapshot was taken.
		query += ` LOCK IN SHARE MODE`
	}
	var n int
	if err := q.QueryRowContext(ctx, query, fieldID, end.UTC(), start.UTC(), excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conflicts: %w", translate(err))
	}
	return n, nil
}

// appointmentTx implements scheduling.Tx on a *sql.Tx.
type appointmentTx struct {
	tx *sql.Tx
}

// LockField takes the row lock that serialises every writer of one field.
func (t *appointmentTx) LockField(ctx context.Context, fieldID uint64) (model.Field, error) {
	const q = `SELECT ` + fieldColumns + ` FROM fields WHERE id = ? FOR UPDATE`
	var f model.Field
	if err := t.tx.QueryRowContext(ctx, q, fieldID).Scan(&f.ID, &f.OwnerID, &f.Name, &f.HourlyPrice); err != nil {
		return model.Field{}, fmt.Errorf("lock field %d: %w", fieldID, translate(err))
	}
	return f, nil
}

func (t *appointmentTx) GetForUpdate(ctx context.Context, id uint64) (model.Appointment, error) {
	const q = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ? FOR UPDATE`
	a, err := scanAppointment(t.tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment %d: %w", id, translate(err))
	}
	return a, nil
}

func (t *appointmentTx) CountConflicts(ctx context.Context, fieldID uint64, start, end time.Time, excludeID uint64) (int, error) {
	return countConflicts(ctx, t.tx, true, fieldID, start, end, excludeID)
}

// Insert stores a and populates its generated ID.
func (t *appointmentTx) Insert(ctx context.Context, a *model.Appointment) error {
	const q = `INSERT INTO appointments (user_id, field_id, start_time, end_time, total_cost, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, a.UserID, a.FieldID, a.StartTime.UTC(), a.EndTime.UTC(), a.TotalCost, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert appointment: %w", translate(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	a.ID = uint64(id)
	return nil
}

// Update rewrites every mutable column.  created_at is never touched.
func (t *appointmentTx) Update(ctx context.Context, a *model.Appointment) error {
	const q = `UPDATE appointments SET user_id = ?, field_id = ?, start_time = ?, end_time = ?, total_cost = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, q, a.UserID, a.FieldID, a.StartTime.UTC(), a.EndTime.UTC(), a.TotalCost, a.ID); err != nil {
		return fmt.Errorf("update appointment %d: %w", a.ID, translate(err))
	}
	return nil
}

func (t *appointmentTx) Delete(ctx context.Context, id uint64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete appointment %d: %w", id, translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete appointment %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
