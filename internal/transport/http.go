package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poscillo/poscillo/internal/handler"
	"github.com/poscillo/poscillo/internal/menu"
	"github.com/poscillo/poscillo/internal/order"
)

func NewRouter(orderSvc order.Service, menuSvc menu.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	orderHandler := handler.NewOrderHandler(orderSvc, menuSvc)
	menuHandler := handler.NewMenuHandler(menuSvc)

	r.Group(func(r chi.Router) {
		r.Use(handler.ActorMiddleware)
		orderHandler.RegisterRoutes(r)
		menuHandler.RegisterRoutes(r)
	})

	return r
}
