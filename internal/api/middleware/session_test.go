package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/reviewstudio/studio/internal/api/middleware"
	"github.com/reviewstudio/studio/internal/sessions"
)

func TestSessionLoader(t *testing.T) {
	store := sessions.NewMemoryStore(func() sessions.Defaults { return sessions.Defaults{Mana: 100} })
	sess := store.Create(context.Background())

	r := chi.NewRouter()
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Use(middleware.SessionLoader(store))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			got, ok := middleware.GetSession(r.Context())
			if !ok {
				w.WriteHeader(http.StatusTeapot)
				return
			}
			w.Write([]byte(got.ID))
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID+"/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sess.ID, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/missing/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionLoader_Header(t *testing.T) {
	store := sessions.NewMemoryStore(func() sessions.Defaults { return sessions.Defaults{Mana: 100} })
	sess := store.Create(context.Background())

	h := middleware.SessionLoader(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ := middleware.GetSession(r.Context())
		w.Write([]byte(got.ID))
	}))

	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	req.Header.Set("X-Session-Id", sess.ID)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, sess.ID, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/report", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
