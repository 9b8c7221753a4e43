package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/internal/transport/rest"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rest Suite")
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

var _ = Describe("Router", func() {
	var (
		router *chi.Mux
		db     *pinger
	)

	BeforeEach(func() {
		base := transport.NewBaseHandler(logger.Discard())
		db = &pinger{}
		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Base:           base,
			Health:         rest.NewHealthHandler(base, map[string]rest.Pinger{"database": db}),
			AllowedOrigins: []string{"https://backoffice.example.com"},
		})
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("answers the liveness probe and tags the request id", func() {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("X-Request-Id")).NotTo(BeEmpty())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("X-Request-Id", "till-7-0001")
		Expect(serve(req).Header().Get("X-Request-Id")).To(Equal("till-7-0001"))
	})

	It("reports an unreachable database as unhealthy without leaking the error", func() {
		Expect(serve(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)).Code).To(Equal(http.StatusOK))

		db.err = errors.New("dial tcp 10.0.0.3:5432: connection refused")
		w := serve(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(w.Body.String()).NotTo(ContainSubstring("10.0.0.3"))

		var resp rest.HealthResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Components["database"].Status).To(Equal(rest.HealthUnhealthy))
	})

	It("serves the OpenAPI document and 404s unknown routes", func() {
		Expect(serve(httptest.NewRequest(http.MethodGet, "/openapi.yml", nil)).Code).To(Equal(http.StatusOK))
		Expect(serve(httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)).Code).To(Equal(http.StatusNotFound))
	})

	It("answers CORS preflight only for allowed origins", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/ping", nil)
		req.Header.Set("Origin", "https://backoffice.example.com")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := serve(req)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://backoffice.example.com"))
		Expect(w.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))

		req = httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("Origin", "https://evil.example.net")
		Expect(serve(req).Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("turns a panic into a 500 envelope", func() {
		router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("secret detail") })
		w := serve(httptest.NewRequest(http.MethodGet, "/boom", nil))
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).To(ContainSubstring("INTERNAL"))
		Expect(w.Body.String()).NotTo(ContainSubstring("secret detail"))
	})
})
