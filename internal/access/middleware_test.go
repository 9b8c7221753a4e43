package access_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/access"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Authorization middleware", func() {
	var (
		ctx    context.Context
		s      *stack
		authz  *access.Authorization
		seenID int64
		next   http.Handler
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = newStack(ctx, access.Options{})
		authz = access.NewAuthorization(s.engine, transport.NewBaseHandler(logger.Discard()), "/login", "/access-denied")

		seenID = 0
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := access.UserFromContext(r.Context())
			Expect(ok).To(BeTrue())
			id, ok := internal.UserIDFromContext(r.Context())
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(u.ID))
			seenID = u.ID
			w.WriteHeader(http.StatusOK)
		})
	})

	request := func(sid, accept string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/export?from=2025-01-01", nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		if sid != "" {
			req = req.WithContext(internal.ContextWithSessionID(req.Context(), sid))
		}
		return req
	}

	It("answers API callers without a session with 401", func() {
		rec := httptest.NewRecorder()
		authz.RequireLogin()(next).ServeHTTP(rec, request("", "application/json"))

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(rec.Body.String()).To(ContainSubstring(`"UNAUTHENTICATED"`))
		Expect(seenID).To(BeZero())
	})

	It("redirects browsers without a session to the login page", func() {
		rec := httptest.NewRecorder()
		authz.RequireLogin()(next).ServeHTTP(rec, request("", "text/html,application/xhtml+xml"))

		Expect(rec.Code).To(Equal(http.StatusSeeOther))
		Expect(rec.Header().Get("Location")).To(Equal("/login?next=%2Fapi%2Fv1%2Freports%2Fexport%3Ffrom%3D2025-01-01"))
	})

	It("stores the principal for downstream handlers", func() {
		u := s.createUser(ctx, "alice", "p@ss1234", role.Cashier)
		sid := s.login(ctx, "alice", "p@ss1234")

		rec := httptest.NewRecorder()
		authz.RequireRole(role.Cashier)(next).ServeHTTP(rec, request(sid, ""))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(seenID).To(Equal(u.ID))
	})

	It("answers a missing capability with 403 for API callers", func() {
		s.createUser(ctx, "bob", "p@ss1234", role.Manager)
		sid := s.login(ctx, "bob", "p@ss1234")

		rec := httptest.NewRecorder()
		authz.Check(next.ServeHTTP, "reports", "export").ServeHTTP(rec, request(sid, "application/json"))

		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(rec.Body.String()).To(ContainSubstring(`"FORBIDDEN"`))
		Expect(rec.Body.String()).To(ContainSubstring(`"required":"reports:export"`))
	})

	It("redirects browsers to the access-denied page with context", func() {
		s.createUser(ctx, "bob", "p@ss1234", role.Manager)
		sid := s.login(ctx, "bob", "p@ss1234")

		rec := httptest.NewRecorder()
		authz.RequirePrivileged()(next).ServeHTTP(rec, request(sid, "text/html"))

		Expect(rec.Code).To(Equal(http.StatusSeeOther))
		Expect(rec.Header().Get("Location")).To(HavePrefix("/access-denied?"))
		Expect(rec.Header().Get("Location")).To(ContainSubstring("role=manager"))
	})

	It("passes once the capability is granted", func() {
		s.createUser(ctx, "bob", "p@ss1234", role.Manager)
		sid := s.login(ctx, "bob", "p@ss1234")
		Expect(s.perms.Grant(ctx, permission.GrantInput{Role: role.Manager, Module: "reports", Action: "export"})).To(Succeed())

		rec := httptest.NewRecorder()
		authz.RequireCapability("reports", "export")(next).ServeHTTP(rec, request(sid, ""))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("answers storage failures with 503", func() {
		s.createUser(ctx, "bob", "p@ss1234", role.Manager)
		sid := s.login(ctx, "bob", "p@ss1234")

		broken := access.NewEngine(s.auth, brokenEvaluator{}, nil, logger.Discard(), access.Options{})
		authz = access.NewAuthorization(broken, transport.NewBaseHandler(logger.Discard()), "/login", "/access-denied")

		rec := httptest.NewRecorder()
		authz.RequireCapability("reports", "export")(next).ServeHTTP(rec, request(sid, "text/html"))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})
})
