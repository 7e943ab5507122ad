package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/middlewares"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"github.com/gin-gonic/gin"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{utils.ErrorRecordNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: expected SO-0002, got SO-0001", utils.ErrorNumberMismatch), http.StatusConflict},
		{fmt.Errorf("line SKU-1: %w", utils.ErrorInsufficientStock), http.StatusUnprocessableEntity},
		{utils.ErrorValidation, http.StatusBadRequest},
		{utils.ErrorInvalidQuantity, http.StatusBadRequest},
		{utils.ErrorBatchSkuMismatch, http.StatusBadRequest},
		{utils.ErrorInvalidStatusTransition, http.StatusBadRequest},
		{utils.ErrorInvalidDocumentType, http.StatusBadRequest},
		{utils.ErrorInvalidBatch, http.StatusInternalServerError},
		{errors.New("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := errorStatus(tc.err); got != tc.want {
			t.Fatalf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHealthzBypassesReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newRouter(config.GetLogger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("/healthz = %d", w.Code)
	}
	if w.Header().Get("x-correlation-id") == "" {
		t.Fatal("correlation id header missing")
	}

	// no database connected in unit tests
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sequences", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("/sequences before db = %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("API_SECRET", "test-secret")

	r := gin.New()
	r.GET("/whoami", middlewares.AuthMiddleware(), func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		c.String(http.StatusOK, "%s/%d", businessId, userId)
	})

	token, err := utils.JwtGenerate(5, "Clerk", "biz-9")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
		if tc.want == http.StatusOK && w.Body.String() != "biz-9/5" {
			t.Fatalf("%s: body = %q", tc.name, w.Body.String())
		}
	}

	t.Setenv("API_SECRET", "")
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("without API_SECRET: status = %d, want 401", w.Code)
	}
}

func TestCheckAuthConfig(t *testing.T) {
	t.Setenv("API_SECRET", "")
	t.Setenv("GO_ENV", "production")
	if err := checkAuthConfig(); !errors.Is(err, utils.ErrorJwtSecretMissing) {
		t.Fatalf("production without secret: err = %v", err)
	}
	t.Setenv("GO_ENV", "development")
	if err := checkAuthConfig(); err != nil {
		t.Fatalf("development without secret: err = %v", err)
	}
	t.Setenv("API_SECRET", "s")
	t.Setenv("GO_ENV", "production")
	if err := checkAuthConfig(); err != nil {
		t.Fatalf("production with secret: err = %v", err)
	}
}

func TestCreateProductRejectsBadBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("API_SECRET", "test-secret")
	r := gin.New()
	r.POST("/products", middlewares.AuthMiddleware(), createProductHandler)
	token, err := utils.JwtGenerate(5, "Clerk", "biz-9")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	cases := []struct {
		name     string
		body     string
		contains string
	}{
		{"malformed json", `{"sku":`, "request body"},
		{"empty body", ``, "request body"},
		{"missing sku", `{"name":"Soap","units_per_carton":12}`, "NewProduct.Sku:required"},
		{"zero units per carton", `{"sku":"S-1","name":"Soap","units_per_carton":0}`, "NewProduct.UnitsPerCarton:gt"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(tc.body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, w.Code)
		}
		var body struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: body %q: %v", tc.name, w.Body.String(), err)
		}
		if !strings.HasPrefix(body.Error, utils.ErrorValidation.Error()) || !strings.Contains(body.Error, tc.contains) {
			t.Fatalf("%s: error = %q, want %q", tc.name, body.Error, tc.contains)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("got %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("blank csv should give nil")
	}
}
