package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantBody   string
		wantDeps   map[string]string
	}{
		{"no dependencies", nil, http.StatusOK, "healthy", map[string]string{}},
		{"all healthy", map[string]Pinger{"database": ok, "redis": ok}, http.StatusOK, "healthy", map[string]string{"database": "healthy", "redis": "healthy"}},
		{"redis down", map[string]Pinger{"database": ok, "redis": down}, http.StatusServiceUnavailable, "unhealthy", map[string]string{"database": "healthy", "redis": "unhealthy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

			NewHealthHandler(tt.checks).Check(c)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body struct {
				Status       string            `json:"status"`
				Dependencies map[string]string `json:"dependencies"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantBody)
			}
			if len(body.Dependencies) != len(tt.wantDeps) {
				t.Fatalf("dependencies = %v, want %v", body.Dependencies, tt.wantDeps)
			}
			for name, want := range tt.wantDeps {
				if body.Dependencies[name] != want {
					t.Errorf("%s = %q, want %q", name, body.Dependencies[name], want)
				}
			}
		})
	}
}
