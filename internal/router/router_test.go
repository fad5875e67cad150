package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rsm-inventory-bot/internal/handler"
	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/internal/router"
	"rsm-inventory-bot/internal/service"

	"github.com/stretchr/testify/assert"
)

type stubSummaries struct{}

func (stubSummaries) Query(context.Context, string) (*model.Summary, error) {
	return &model.Summary{Description: "Doctrine ships on contract"}, nil
}

func (stubSummaries) LastSummary(context.Context) (*model.Summary, error) {
	return nil, service.ErrNoSummary
}

func TestRoutes(t *testing.T) {
	mux := router.New(router.Config{
		Handler:        handler.New("bot", "test", nil),
		SummaryHandler: handler.NewSummaryHandler(stubSummaries{}),
		AdminHandler:   handler.NewAdminHandler(nil, "memory", 1, 5),
		APIKeys:        []string{"secret"},
	})

	tests := []struct {
		method string
		path   string
		body   string
		key    string
		want   int
	}{
		{http.MethodGet, "/api/status", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/ready", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/summary", "", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/summary", `{"location":"Jita"}`, "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/summary", `{"location":"Jita"}`, "secret", http.StatusOK},
		{http.MethodGet, "/api/v1/admin/stats", "", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/stats", "", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path+" "+tt.key, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}
