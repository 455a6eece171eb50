package menu

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("dish not found")

type Repository interface {
	Create(ctx context.Context, d *Dish) error
	GetByID(ctx context.Context, id string) (*Dish, error)
	Update(ctx context.Context, d *Dish) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Dish, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, d *Dish) error {
	query := `
		INSERT INTO dishes (id, title, description, price, cook_time_minutes, image_url, created_at)
		VALUES (:id, :title, :description, :price, :cook_time_minutes, :image_url, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("repository: failed to insert dish: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Dish, error) {
	var d Dish
	query := `SELECT id, title, description, price, cook_time_minutes, image_url, created_at FROM dishes WHERE id = $1`
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select dish %s: %w", id, err)
	}
	return &d, nil
}

func (r *postgresRepository) Update(ctx context.Context, d *Dish) error {
	query := `
		UPDATE dishes
		SET title = :title, description = :description, price = :price,
		    cook_time_minutes = :cook_time_minutes, image_url = :image_url
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, d)
	if err != nil {
		return fmt.Errorf("repository: failed to update dish %s: %w", d.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to read update result for dish %s: %w", d.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dishes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete dish %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to read delete result for dish %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Dish, error) {
	dishes := make([]Dish, 0)
	query := `SELECT id, title, description, price, cook_time_minutes, image_url, created_at FROM dishes ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &dishes, query); err != nil {
		return nil, fmt.Errorf("repository: failed to list dishes: %w", err)
	}
	return dishes, nil
}
