package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/handler"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/service"
)

type stubTokens map[string]*service.Claims

func (s stubTokens) ValidateToken(token string) (*service.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

type noopSweeper struct{}

func (noopSweeper) RunOnce(context.Context) (int, error) { return 0, nil }

func newTestRouter() *gin.Engine {
	cfg := &config.Config{GinMode: gin.TestMode, MetricsEnabled: true}
	tokens := stubTokens{
		"student": {UserID: 1, Role: model.RoleStudent},
		"admin":   {UserID: 2, Role: model.RoleAdmin},
	}
	ping := func(context.Context) error { return nil }
	handlers := &Handlers{
		System: handler.NewSystemHandler(map[string]handler.Pinger{"postgres": ping}, noopSweeper{}, zerolog.Nop()),
	}
	return SetupRouter(tokens, handlers, nil, cfg)
}

func TestPublicRoutes(t *testing.T) {
	r := newTestRouter()

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, w.Code)
		}
	}
}

func TestProtectedRoutes(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/api/v1/taking/sessions", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/exams/mine", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/exams", "student", http.StatusForbidden},
		{http.MethodGet, "/api/v1/exams/mine", "student", http.StatusForbidden},
		{http.MethodPost, "/api/v1/sessions/x/terminate", "student", http.StatusForbidden},
		{http.MethodPost, "/api/v1/admin/sweep", "student", http.StatusForbidden},
		{http.MethodPost, "/api/v1/admin/sweep", "admin", http.StatusOK},
		{http.MethodGet, "/api/v1/results/my", "bogus", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/auth/change-password", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/users", "student", http.StatusForbidden},
		{http.MethodGet, "/api/v1/admin/users/1", "student", http.StatusForbidden},
		{http.MethodPut, "/api/v1/admin/users/1/deactivate", "student", http.StatusForbidden},
		{http.MethodPut, "/api/v1/admin/users/1/activate", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path+" as "+tt.token, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestTakingRoutesAreNotCached(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/taking/sessions", nil))
	if cc := w.Header().Get("Cache-Control"); cc == "" {
		t.Fatal("taking routes must send Cache-Control")
	}
}
