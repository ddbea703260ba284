package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/service"
)

// HeaderAPIKey carries the room's shared secret on every authenticated request.
const HeaderAPIKey = "x-api-key"

type contextKey string

const RoomKey contextKey = "room"

type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*models.Room, error)
}

// APIKeyMiddleware resolves the x-api-key header to a room and binds it to the
// request context. A missing key is 401, an unknown key 403.
func APIKeyMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			room, err := authn.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
			switch {
			case errors.Is(err, service.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, "missing x-api-key header")
				return
			case errors.Is(err, service.ErrForbidden):
				writeError(w, http.StatusForbidden, "invalid api key")
				return
			case err != nil:
				slog.Error("failed to authenticate request", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := WithRoom(r.Context(), room)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithRoom(ctx context.Context, room *models.Room) context.Context {
	return context.WithValue(ctx, RoomKey, room)
}

// RoomFromContext returns the authenticated room, or nil outside the middleware.
func RoomFromContext(ctx context.Context) *models.Room {
	room, _ := ctx.Value(RoomKey).(*models.Room)
	return room
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
