package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/internal/store"
)

type contextKey string

// SessionKey is the context key for the loaded review session.
const SessionKey contextKey = "session"

// SessionIDParam is the chi URL parameter carrying the session id.
const SessionIDParam = "sessionID"

// SessionGetter looks up a session by id.
type SessionGetter interface {
	Get(ctx context.Context, id string) (*sessions.Session, error)
}

// SessionLoader resolves the session named by the {sessionID} URL parameter,
// falling back to the X-Session-Id header, and stores it in the request
// context. Unknown sessions get a 404.
func SessionLoader(getter SessionGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(chi.URLParam(r, SessionIDParam))
			if id == "" {
				id = strings.TrimSpace(r.Header.Get(SessionHeader))
			}
			if id == "" {
				respondSessionError(w, http.StatusBadRequest, "session id required")
				return
			}

			sess, err := getter.Get(r.Context(), id)
			if err != nil {
				var nf *store.ErrNotFound
				if errors.As(err, &nf) {
					respondSessionError(w, http.StatusNotFound, err.Error())
					return
				}
				respondSessionError(w, http.StatusInternalServerError, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// GetSession retrieves the session loaded by SessionLoader.
func GetSession(ctx context.Context) (*sessions.Session, bool) {
	sess, ok := ctx.Value(SessionKey).(*sessions.Session)
	return sess, ok && sess != nil
}

func respondSessionError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
