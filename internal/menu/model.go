package menu

import "time"

// Dish is a menu entry. Orders snapshot the title and price at add time,
// so editing a dish never rewrites an already-placed order.
type Dish struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	Price           float64   `json:"price" db:"price"`
	CookTimeMinutes int       `json:"cook_time_minutes" db:"cook_time_minutes"`
	ImageURL        string    `json:"image_url,omitempty" db:"image_url"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
