package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkfair/contest-service/internal/domain"
)

// PlateRepository reads monitored identifiers for active subscribers.
type PlateRepository interface {
	ListActive(ctx context.Context) ([]domain.MonitoredPlate, error)
	GetByID(ctx context.Context, id string) (*domain.MonitoredPlate, error)
}

type plateRepository struct {
	pool *pgxpool.Pool
}

// NewPlateRepository builds repository.
func NewPlateRepository(pool *pgxpool.Pool) PlateRepository {
	return &plateRepository{pool: pool}
}

func (r *plateRepository) ListActive(ctx context.Context) ([]domain.MonitoredPlate, error) {
	const query = `
        SELECT p.id, p.account_id, p.plate, p.state, p.active, p.created_at
        FROM monitored_plates p
        JOIN accounts a ON a.id = p.account_id
        WHERE p.active AND a.active
        ORDER BY p.created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MonitoredPlate
	for rows.Next() {
		var plate domain.MonitoredPlate
		if err := rows.Scan(
			&plate.ID,
			&plate.AccountID,
			&plate.Plate,
			&plate.State,
			&plate.Active,
			&plate.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, plate)
	}
	return result, rows.Err()
}

func (r *plateRepository) GetByID(ctx context.Context, id string) (*domain.MonitoredPlate, error) {
	const query = `SELECT id, account_id, plate, state, active, created_at FROM monitored_plates WHERE id=$1`
	var plate domain.MonitoredPlate
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&plate.ID,
		&plate.AccountID,
		&plate.Plate,
		&plate.State,
		&plate.Active,
		&plate.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &plate, nil
}
