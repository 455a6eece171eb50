package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poscillo/poscillo/internal/menu"
	"github.com/poscillo/poscillo/internal/order"
)

// MenuHandler exposes the dish catalog. Everyone reads it; only the
// cashier edits it.
type MenuHandler struct {
	svc menu.Service
}

func NewMenuHandler(svc menu.Service) *MenuHandler {
	return &MenuHandler{svc: svc}
}

func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Route("/menu", func(r chi.Router) {
		r.Get("/", h.ListDishes)
		r.Get("/{id}", h.GetDish)
		r.Post("/", h.CreateDish)
		r.Put("/{id}", h.UpdateDish)
		r.Delete("/{id}", h.DeleteDish)
	})
}

func (h *MenuHandler) ListDishes(w http.ResponseWriter, r *http.Request) {
	dishes, err := h.svc.ListDishes(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dishes)
}

func (h *MenuHandler) GetDish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	dish, err := h.svc.GetDishByID(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dish)
}

func (h *MenuHandler) CreateDish(w http.ResponseWriter, r *http.Request) {
	if !requireCashier(w, r) {
		return
	}

	var d menu.Dish
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.CreateDish(r.Context(), &d)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *MenuHandler) UpdateDish(w http.ResponseWriter, r *http.Request) {
	if !requireCashier(w, r) {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	var d menu.Dish
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d.ID = id

	if err := h.svc.UpdateDish(r.Context(), &d); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *MenuHandler) DeleteDish(w http.ResponseWriter, r *http.Request) {
	if !requireCashier(w, r) {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteDish(r.Context(), id); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireCashier(w http.ResponseWriter, r *http.Request) bool {
	if actorFrom(r).Role != order.RoleCashier {
		respondWithError(w, http.StatusForbidden, order.ErrUnauthorized.Error())
		return false
	}
	return true
}
