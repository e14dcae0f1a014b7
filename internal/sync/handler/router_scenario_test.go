package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"clicr/internal/jwttoken"
	"clicr/pkg/testutil"
)

func TestRouterScenarios(t *testing.T) {
	testutil.Given(t, "the assembled router", func(t *testing.T) {
		tokens := jwttoken.NewService(testSigningKey, "clicr")
		router := NewRouter(New(&stubService{}, nil), tokens, nil)

		testutil.When(t, "probing GET /healthz", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

			testutil.Then(t, "it responds ok without credentials", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
			})
		})

		testutil.When(t, "scraping GET /metrics", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

			testutil.Then(t, "the exporter answers without credentials", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
			})
		})

		testutil.When(t, "calling GET /sync without a token", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/sync"))

			testutil.Then(t, "the request is rejected as unauthorized", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")
			})
		})

		testutil.When(t, "calling an unknown route", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/nope", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			testutil.Then(t, "the router reports not found", func(t *testing.T) {
				testutil.AssertStatus(t, rec, http.StatusNotFound)
			})
		})
	})
}
