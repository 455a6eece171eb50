package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidDish = errors.New("invalid dish")

type Service interface {
	CreateDish(ctx context.Context, d *Dish) (*Dish, error)
	GetDishByID(ctx context.Context, id string) (*Dish, error)
	UpdateDish(ctx context.Context, d *Dish) error
	DeleteDish(ctx context.Context, id string) error
	ListDishes(ctx context.Context) ([]Dish, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateDish(ctx context.Context, d *Dish) (*Dish, error) {
	if err := validate(d); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate dish id: %w", err)
	}
	d.ID = id.String()
	d.CreatedAt = time.Now().UTC()

	if err := s.repo.Create(ctx, d); err != nil {
		log.Error().Err(err).Str("title", d.Title).Msg("service: failed to create dish")
		return nil, fmt.Errorf("service: failed to create dish: %w", err)
	}

	log.Info().Str("dish_id", d.ID).Str("title", d.Title).Msg("service: dish created")
	return d, nil
}

func (s *service) GetDishByID(ctx context.Context, id string) (*Dish, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch dish: %w", err)
	}
	return d, nil
}

func (s *service) UpdateDish(ctx context.Context, d *Dish) error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDish)
	}
	if err := validate(d); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, d); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("service: failed to update dish: %w", err)
	}
	return nil
}

func (s *service) DeleteDish(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("service: failed to delete dish: %w", err)
	}
	log.Info().Str("dish_id", id).Msg("service: dish deleted")
	return nil
}

func (s *service) ListDishes(ctx context.Context) ([]Dish, error) {
	dishes, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list dishes: %w", err)
	}
	return dishes, nil
}

func validate(d *Dish) error {
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDish)
	}
	if d.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidDish)
	}
	if d.CookTimeMinutes < 0 {
		return fmt.Errorf("%w: cook time cannot be negative", ErrInvalidDish)
	}
	return nil
}
