package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/poscillo/poscillo/internal/menu"
	"github.com/poscillo/poscillo/internal/order"
)

// OrderHandler exposes the lifecycle commands for the three role views.
type OrderHandler struct {
	orders order.Service
	menu   menu.Service
}

func NewOrderHandler(orders order.Service, menuSvc menu.Service) *OrderHandler {
	return &OrderHandler{orders: orders, menu: menuSvc}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.GetActiveOrder)
		r.Post("/items", h.AddItem)
		r.Put("/items/{itemID}", h.SetItemQuantity)
		r.Delete("/items/{itemID}", h.RemoveItem)
		r.Put("/table", h.AssignTable)
		r.Post("/submit", h.Submit)
		r.Post("/{id}/accept", h.Accept)
		r.Post("/{id}/ready", h.MarkReady)
		r.Post("/{id}/settle", h.Settle)
	})
	r.Route("/kitchen", func(r chi.Router) {
		r.Get("/orders", h.KitchenQueue)
		r.Get("/orders/stream", h.KitchenStream)
	})
	r.Route("/cashier", func(r chi.Router) {
		r.Get("/orders", h.ReadyQueue)
		r.Get("/orders/stream", h.ReadyStream)
		r.Get("/receipts/{id}", h.Receipt)
	})
}

// orderView is the wire shape of an order, with the derived fields the
// role screens display.
type orderView struct {
	order.Order
	Total          float64 `json:"total"`
	ElapsedMinutes int     `json:"elapsed_minutes"`
}

func newOrderView(o order.Order, now time.Time) orderView {
	return orderView{
		Order:          o,
		Total:          o.Total(),
		ElapsedMinutes: int(now.Sub(o.CreatedAt).Minutes()),
	}
}

func newOrderViews(orders []order.Order) []orderView {
	now := time.Now().UTC()
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o, now))
	}
	return views
}

func (h *OrderHandler) GetActiveOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	o, err := h.orders.GetActive(r.Context(), actor, actor.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderView(*o, time.Now().UTC()))
}

type addItemRequest struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

// AddItem resolves the dish and snapshots it into the actor's cart,
// creating the cart if this is the first item.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DishID == "" {
		respondWithError(w, http.StatusBadRequest, "dish_id is required")
		return
	}
	if req.Quantity < 1 {
		respondWithError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	dish, err := h.menu.GetDishByID(r.Context(), req.DishID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	item := order.OrderItem{
		ItemID:    dish.ID,
		Title:     dish.Title,
		UnitPrice: dish.Price,
		Quantity:  req.Quantity,
	}

	o, err := h.orders.AddItem(r.Context(), actor, actor.ID, item)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	log.Debug().Str("order_id", o.ID).Str("dish_id", dish.ID).Int("quantity", req.Quantity).Msg("handler: item added")
	respondWithJSON(w, http.StatusOK, newOrderView(*o, time.Now().UTC()))
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *OrderHandler) SetItemQuantity(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	itemID := chi.URLParam(r, "itemID")

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == nil {
		respondWithError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	o, err := h.orders.SetItemQuantity(r.Context(), actor, actor.ID, itemID, *req.Quantity)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderView(*o, time.Now().UTC()))
}

func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	itemID := chi.URLParam(r, "itemID")

	o, err := h.orders.RemoveItem(r.Context(), actor, actor.ID, itemID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderView(*o, time.Now().UTC()))
}

type assignTableRequest struct {
	TableID string `json:"table_id"`
}

func (h *OrderHandler) AssignTable(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req assignTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableID == "" {
		respondWithError(w, http.StatusBadRequest, "table_id is required")
		return
	}

	o, err := h.orders.AssignTable(r.Context(), actor, actor.ID, req.TableID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderView(*o, time.Now().UTC()))
}

func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	o, err := h.orders.Submit(r.Context(), actor, actor.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderView(*o, time.Now().UTC()))
}

func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Accept)
}

func (h *OrderHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkReady)
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor order.Actor, orderID string) (*order.Order, error)) {
	actor := actorFrom(r)
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	o, err := fn(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderView(*o, time.Now().UTC()))
}

func (h *OrderHandler) Settle(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	rec, err := h.orders.Settle(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *OrderHandler) KitchenQueue(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	orders, err := h.orders.KitchenQueue(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderViews(orders))
}

func (h *OrderHandler) ReadyQueue(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	orders, err := h.orders.ReadyQueue(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderViews(orders))
}

func (h *OrderHandler) KitchenStream(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Role != order.RoleCook {
		respondWithError(w, http.StatusForbidden, order.ErrUnauthorized.Error())
		return
	}
	h.stream(w, r, actor, order.Filter{Statuses: []order.Status{order.StatusPending, order.StatusPreparing}})
}

func (h *OrderHandler) ReadyStream(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Role != order.RoleCashier {
		respondWithError(w, http.StatusForbidden, order.ErrUnauthorized.Error())
		return
	}
	h.stream(w, r, actor, order.Filter{Statuses: []order.Status{order.StatusReady}})
}

// stream pushes queue snapshots as server-sent events until the client
// disconnects.
func (h *OrderHandler) stream(w http.ResponseWriter, r *http.Request, actor order.Actor, f order.Filter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snapshots, err := h.orders.Watch(r.Context(), actor, f, 2*time.Second)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snapshot := range snapshots {
		payload, err := json.Marshal(newOrderViews(snapshot))
		if err != nil {
			log.Error().Err(err).Msg("handler: failed to marshal queue snapshot")
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *OrderHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	rec, err := h.orders.Receipt(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}
