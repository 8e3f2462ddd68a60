package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBasicAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(basicAuthMiddleware("admin", "secret"))
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/v1/overview", func(c *gin.Context) { c.String(http.StatusOK, "data") })

	cases := []struct {
		name       string
		path       string
		user, pass string
		want       int
	}{
		{"health is public", "/health", "", "", http.StatusOK},
		{"missing credentials", "/api/v1/overview", "", "", http.StatusUnauthorized},
		{"wrong password", "/api/v1/overview", "admin", "nope", http.StatusUnauthorized},
		{"valid credentials", "/api/v1/overview", "admin", "secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.user != "" {
				req.SetBasicAuth(tc.user, tc.pass)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("missing WWW-Authenticate header")
			}
		})
	}
}
