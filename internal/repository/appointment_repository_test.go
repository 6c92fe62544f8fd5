package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pitch-booking/internal/model"
	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

var (
	start   = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	end     = time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)
	created = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
)

var viewColumns = []string{"id", "user_id", "field_id", "start_time", "end_time", "created_at", "total_cost", "name", "first_name", "last_name", "email"}

func fieldRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "name", "hourly_price"}).AddRow(1, 20, "Pitch A", "50.00")
}

func TestAppointmentRepo_RunInTxCommitsCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAppointmentRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM fields WHERE id = ? FOR UPDATE")).
		WithArgs(uint64(1)).
		WillReturnRows(fieldRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments")).
		WithArgs(uint64(1), end, start, uint64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WithArgs(uint64(10), uint64(1), start, end, sqlmock.AnyArg(), created).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	var appt model.Appointment
	err = repo.RunInTx(context.Background(), func(ctx context.Context, tx scheduling.Tx) error {
		f, err := tx.LockField(ctx, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, "Pitch A", f.Name)
		assert.True(t, f.HourlyPrice.Equal(decimal.RequireFromString("50")))

		n, err := tx.CountConflicts(ctx, 1, start, end, 0)
		if err != nil {
			return err
		}
		assert.Zero(t, n)

		appt = model.Appointment{UserID: 10, FieldID: 1, StartTime: start, EndTime: end, CreatedAt: created, TotalCost: decimal.RequireFromString("100.000")}
		return tx.Insert(ctx, &appt)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), appt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_RunInTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAppointmentRepo(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err = repo.RunInTx(context.Background(), func(context.Context, scheduling.Tx) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_LockErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, scheduling.ErrStoreConflict},
		{"lock wait timeout", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, scheduling.ErrStoreConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(tt.err)
			mock.ExpectRollback()

			err = NewAppointmentRepo(db).RunInTx(context.Background(), func(ctx context.Context, tx scheduling.Tx) error {
				_, err := tx.LockField(ctx, 1)
				return err
			})
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAppointmentRepo_UnknownFieldIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "hourly_price"}))
	mock.ExpectRollback()

	err = NewAppointmentRepo(db).RunInTx(context.Background(), func(ctx context.Context, tx scheduling.Tx) error {
		_, err := tx.LockField(ctx, 42)
		return err
	})
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
}

func TestAppointmentRepo_UpdateAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE id = ? FOR UPDATE")).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "field_id", "start_time", "end_time", "created_at", "total_cost"}).
			AddRow(5, 10, 1, start, end, created, "100.000"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET user_id = ?, field_id = ?, start_time = ?, end_time = ?, total_cost = ? WHERE id = ?")).
		WithArgs(uint64(10), uint64(2), start, end, sqlmock.AnyArg(), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM appointments WHERE id = ?")).
		WithArgs(uint64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = NewAppointmentRepo(db).RunInTx(context.Background(), func(ctx context.Context, tx scheduling.Tx) error {
		a, err := tx.GetForUpdate(ctx, 5)
		if err != nil {
			return err
		}
		assert.Equal(t, "100.000", a.TotalCost.StringFixed(3))
		a.FieldID = 2
		if err := tx.Update(ctx, &a); err != nil {
			return err
		}
		return tx.Delete(ctx, 6)
	})
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_GetView(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAppointmentRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.id = ?")).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(viewColumns).
			AddRow(5, 10, 1, start, end, created, "100.000", "Pitch A", nil, nil, "alice@example.com"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.id = ?")).
		WithArgs(uint64(6)).
		WillReturnRows(sqlmock.NewRows(viewColumns))

	v, err := repo.GetView(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Pitch A", v.FieldName)
	assert.Equal(t, "alice@example.com", v.UserDisplayName())
	assert.Equal(t, start, v.StartTime)

	_, err = repo.GetView(context.Background(), 6)
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_ListBuildsFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAppointmentRepo(db)

	dayStart := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.field_id = ? AND a.user_id = ? AND a.start_time >= ? AND a.start_time < ? ORDER BY a.created_at, a.id")).
		WithArgs(uint64(1), uint64(10), dayStart, dayEnd).
		WillReturnRows(sqlmock.NewRows(viewColumns).
			AddRow(5, 10, 1, start, end, created, "100.000", "Pitch A", "Alice", "Smith", "alice@example.com"))
	mock.ExpectQuery(regexp.QuoteMeta("JOIN users u ON u.id = a.user_id ORDER BY a.created_at, a.id")).
		WillReturnRows(sqlmock.NewRows(viewColumns))

	got, err := repo.List(context.Background(), scheduling.ListFilter{FieldID: 1, UserID: 10, StartFrom: dayStart, StartBefore: dayEnd})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice Smith", got[0].UserDisplayName())

	all, err := repo.List(context.Background(), scheduling.ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_ListOverlapping(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.field_id = ? AND a.start_time < ? AND a.end_time > ? ORDER BY a.start_time")).
		WithArgs(uint64(1), to, from).
		WillReturnRows(sqlmock.NewRows(viewColumns).
			AddRow(3, 10, 1, from.Add(-2*time.Hour), from.Add(7*time.Hour), created, "450.000", "Pitch A", "", "", "x@example.com"))

	got, err := NewAppointmentRepo(db).ListOverlapping(context.Background(), 1, from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepo_GetField(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewFieldRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fields WHERE id = ?")).WithArgs(uint64(1)).WillReturnRows(fieldRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM fields WHERE id = ?")).WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "hourly_price"}))

	f, err := repo.GetField(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), f.OwnerID)
	assert.Equal(t, "50.00", f.HourlyPrice.StringFixed(2))

	_, err = repo.GetField(context.Background(), 2)
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	other := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.Equal(t, error(other), translate(other))
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1213}), ErrConflict)
}
