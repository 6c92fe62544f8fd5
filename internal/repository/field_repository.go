package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/pitch-booking/internal/model"
)

// FieldRepo is a read-only view of the field catalog.
type FieldRepo struct {
	db *sql.DB
}

// NewFieldRepo returns a new FieldRepo bound to the given database.
func NewFieldRepo(db *sql.DB) *FieldRepo { return &FieldRepo{db: db} }

const fieldColumns = `id, owner_id, name, hourly_price`

// GetField loads a field by id.  It returns ErrNotFound when no field
// with that id exists.
func (r *FieldRepo) GetField(ctx context.Context, id uint64) (model.Field, error) {
	const q = `SELECT ` + fieldColumns + ` FROM fields WHERE id = ?`
	var f model.Field
	err := r.db.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.OwnerID, &f.Name, &f.HourlyPrice)
	if err != nil {
		return model.Field{}, fmt.Errorf("get field %d: %w", id, translate(err))
	}
	return f, nil
}
