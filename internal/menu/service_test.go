package menu_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poscillo/poscillo/internal/menu"
)

type mockRepository struct {
	createFunc  func(ctx context.Context, d *menu.Dish) error
	getByIDFunc func(ctx context.Context, id string) (*menu.Dish, error)
	updateFunc  func(ctx context.Context, d *menu.Dish) error
	deleteFunc  func(ctx context.Context, id string) error
	listFunc    func(ctx context.Context) ([]menu.Dish, error)
}

func (m *mockRepository) Create(ctx context.Context, d *menu.Dish) error { return m.createFunc(ctx, d) }
func (m *mockRepository) GetByID(ctx context.Context, id string) (*menu.Dish, error) {
	return m.getByIDFunc(ctx, id)
}
func (m *mockRepository) Update(ctx context.Context, d *menu.Dish) error { return m.updateFunc(ctx, d) }
func (m *mockRepository) Delete(ctx context.Context, id string) error    { return m.deleteFunc(ctx, id) }
func (m *mockRepository) List(ctx context.Context) ([]menu.Dish, error)  { return m.listFunc(ctx) }

func TestService_CreateDish(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns_id_and_created_at", func(t *testing.T) {
		var stored *menu.Dish
		repo := &mockRepository{
			createFunc: func(ctx context.Context, d *menu.Dish) error {
				stored = d
				return nil
			},
		}
		svc := menu.NewService(repo)

		d, err := svc.CreateDish(ctx, &menu.Dish{
			Title:           "Tacos al pastor",
			Description:     "Con piña",
			Price:           6.5,
			CookTimeMinutes: 12,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, d.ID)
		assert.False(t, d.CreatedAt.IsZero())
		assert.Same(t, d, stored)
	})

	t.Run("validation", func(t *testing.T) {
		testCases := []struct {
			name string
			dish menu.Dish
		}{
			{name: "missing_title", dish: menu.Dish{Price: 5}},
			{name: "zero_price", dish: menu.Dish{Title: "Agua", Price: 0}},
			{name: "negative_price", dish: menu.Dish{Title: "Agua", Price: -1}},
			{name: "negative_cook_time", dish: menu.Dish{Title: "Agua", Price: 1, CookTimeMinutes: -5}},
		}

		svc := menu.NewService(&mockRepository{})
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.CreateDish(ctx, &tc.dish)
				assert.ErrorIs(t, err, menu.ErrInvalidDish)
			})
		}
	})

	t.Run("repository_error_is_wrapped", func(t *testing.T) {
		repo := &mockRepository{
			createFunc: func(ctx context.Context, d *menu.Dish) error {
				return errors.New("db down")
			},
		}
		svc := menu.NewService(repo)

		_, err := svc.CreateDish(ctx, &menu.Dish{Title: "Agua", Price: 1})
		assert.Error(t, err)
	})
}

func TestService_GetDishByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo := &mockRepository{
			getByIDFunc: func(ctx context.Context, id string) (*menu.Dish, error) {
				return &menu.Dish{ID: id, Title: "Pizza", Price: 10}, nil
			},
		}
		svc := menu.NewService(repo)

		d, err := svc.GetDishByID(ctx, "dish-1")
		require.NoError(t, err)
		assert.Equal(t, "Pizza", d.Title)
	})

	t.Run("not_found", func(t *testing.T) {
		repo := &mockRepository{
			getByIDFunc: func(ctx context.Context, id string) (*menu.Dish, error) {
				return nil, menu.ErrNotFound
			},
		}
		svc := menu.NewService(repo)

		_, err := svc.GetDishByID(ctx, "missing")
		assert.ErrorIs(t, err, menu.ErrNotFound)
	})
}

func TestService_UpdateDish(t *testing.T) {
	ctx := context.Background()

	t.Run("requires_id", func(t *testing.T) {
		svc := menu.NewService(&mockRepository{})

		err := svc.UpdateDish(ctx, &menu.Dish{Title: "Pizza", Price: 10})
		assert.ErrorIs(t, err, menu.ErrInvalidDish)
	})

	t.Run("not_found_passes_through", func(t *testing.T) {
		repo := &mockRepository{
			updateFunc: func(ctx context.Context, d *menu.Dish) error {
				return menu.ErrNotFound
			},
		}
		svc := menu.NewService(repo)

		err := svc.UpdateDish(ctx, &menu.Dish{ID: "dish-1", Title: "Pizza", Price: 10})
		assert.ErrorIs(t, err, menu.ErrNotFound)
	})

	t.Run("ok", func(t *testing.T) {
		repo := &mockRepository{
			updateFunc: func(ctx context.Context, d *menu.Dish) error { return nil },
		}
		svc := menu.NewService(repo)

		err := svc.UpdateDish(ctx, &menu.Dish{ID: "dish-1", Title: "Pizza", Price: 12})
		assert.NoError(t, err)
	})
}

func TestService_DeleteDish(t *testing.T) {
	ctx := context.Background()

	repo := &mockRepository{
		deleteFunc: func(ctx context.Context, id string) error {
			if id == "dish-1" {
				return nil
			}
			return menu.ErrNotFound
		},
	}
	svc := menu.NewService(repo)

	assert.NoError(t, svc.DeleteDish(ctx, "dish-1"))
	assert.ErrorIs(t, svc.DeleteDish(ctx, "missing"), menu.ErrNotFound)
}

func TestService_ListDishes(t *testing.T) {
	ctx := context.Background()

	repo := &mockRepository{
		listFunc: func(ctx context.Context) ([]menu.Dish, error) {
			return []menu.Dish{
				{ID: "a", Title: "Pizza", Price: 10},
				{ID: "b", Title: "Ensalada", Price: 5},
			}, nil
		},
	}
	svc := menu.NewService(repo)

	dishes, err := svc.ListDishes(ctx)
	require.NoError(t, err)
	assert.Len(t, dishes, 2)
}
