package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/poscillo/poscillo/internal/menu"
	"github.com/poscillo/poscillo/internal/order"
)

type ctxKey int

const actorKey ctxKey = 0

// ActorMiddleware extracts the authenticated actor from the request
// headers. Authentication itself is delegated to an upstream identity
// provider; by the time a request reaches this service the gateway has
// verified the caller and stamped these headers.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Actor-ID")
		role := order.Role(r.Header.Get("X-Actor-Role"))

		switch role {
		case order.RoleCustomer, order.RoleCook, order.RoleCashier:
		default:
			respondWithError(w, http.StatusUnauthorized, "unknown actor role")
			return
		}
		if id == "" {
			respondWithError(w, http.StatusUnauthorized, "actor id is required")
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, order.Actor{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) order.Actor {
	a, _ := r.Context().Value(actorKey).(order.Actor)
	return a
}

// respondWithError sends a JSON error body.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, menu.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, order.ErrTableUnassigned):
		return http.StatusPreconditionFailed
	case errors.Is(err, order.ErrEmptyOrder):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, order.ErrInvalidItem), errors.Is(err, menu.ErrInvalidDish):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("handler: internal error")
		respondWithError(w, code, "internal error")
		return
	}
	respondWithError(w, code, err.Error())
}
