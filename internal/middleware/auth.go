package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/logging"
)

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
	requestIDKey
)

// UserResolver maps a bearer token to the id of the user it was issued for.
type UserResolver interface {
	CurrentUser(token string) (string, error)
}

// TokenFromRequest returns the bearer token from the Authorization header, falling back to
// the token query parameter used by websocket clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// Auth rejects requests without a valid bearer token and stores the caller in the request context.
func Auth(users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				WriteError(w, r, apierr.Unauthorized("Missing authorization"))
				return
			}
			userID, err := users.CurrentUser(token)
			if err != nil {
				logging.FromContext(r.Context()).WithError(err).Debug("Token rejected")
				WriteError(w, r, apierr.Unauthorized("Invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, token)))
		})
	}
}

func WithUser(ctx context.Context, userID, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, userID)
	return context.WithValue(ctx, tokenKey, token)
}

func UserID(ctx context.Context) string {
	s, _ := ctx.Value(userKey).(string)
	return s
}

// Token returns the raw caller token, forwarded to platforms on the caller's behalf.
func Token(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey).(string)
	return s
}

// WriteError renders err as the JSON error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := apierr.ToResponse(err, RequestID(r.Context()))
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
