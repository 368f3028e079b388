package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// CatalogRepository reads services and staff. Their lifecycle is managed elsewhere.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const serviceColumns = `id::text, business_id::text, name, duration_minutes, price::float8, active`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.Price, &s.Active)
	return s, err
}

func (r *CatalogRepository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	if !validID(businessID) || !validID(serviceID) {
		return model.Service{}, model.ErrNotFound
	}
	s, err := scanService(r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID))
	return s, mapError(err)
}

func (r *CatalogRepository) ListActiveServices(ctx context.Context, businessID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE business_id = $1 AND active
		ORDER BY name ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// EligibleStaff returns active staff assigned to the service, or every active member
// of the business when the service has no assignments.
func (r *CatalogRepository) EligibleStaff(ctx context.Context, businessID, serviceID string) ([]model.StaffMember, error) {
	if !validID(businessID) || !validID(serviceID) {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, active
		FROM staff
		WHERE business_id = $1 AND active
		ORDER BY name ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []model.StaffMember
	for rows.Next() {
		var s model.StaffMember
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Active); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	assignedRows, err := r.pool.Query(ctx, `
		SELECT ss.staff_id::text
		FROM staff_services ss
		JOIN staff s ON s.id = ss.staff_id
		WHERE s.business_id = $1 AND ss.service_id = $2
	`, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	assigned, err := pgx.CollectRows(assignedRows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return model.EligibleStaff(staff, assigned), nil
}
