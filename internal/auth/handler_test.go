package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/access"
	"github.com/frahmantamala/hospitality-access/internal/auth"
	authPostgres "github.com/frahmantamala/hospitality-access/internal/auth/postgres"
	sessionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/session"
	userDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/user"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/internal/user"
	userPostgres "github.com/frahmantamala/hospitality-access/internal/user/postgres"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type staticModules []permission.Module

func (m staticModules) UserModules(context.Context, int64, role.Role) ([]permission.Module, error) {
	return m, nil
}

type failingModules struct{ err error }

func (m failingModules) UserModules(context.Context, int64, role.Role) ([]permission.Module, error) {
	return nil, m.err
}

var _ = Describe("Auth Handler Integration", func() {
	var (
		ctx     context.Context
		users   user.RepositoryAPI
		svc     *auth.Service
		codec   *auth.TokenCodec
		handler *auth.Handler
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&userDatamodel.User{}, &sessionDatamodel.Session{})).To(Succeed())

		now = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		hasher := auth.NewPasswordHasher(fastPasswordConfig())
		users = userPostgres.NewUserRepository(db)
		throttle := auth.NewLoginThrottle(internal.LoginThrottleConfig{Enabled: true, PerMinute: 1, Burst: 3}, clock)

		svc, err = auth.NewService(users, authPostgres.NewSessionRepository(db), hasher, auth.Options{
			SessionLifetime: time.Hour,
			Throttle:        throttle,
			Now:             clock,
		}, logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		codec = auth.NewTokenCodec("handler-test-secret-0123456789abcdef", "hospitality-access", clock)
		modules := staticModules{{Key: "pos", DisplayName: "Point of Sale", IsActive: true}}
		handler = auth.NewHandler(transport.NewBaseHandler(logger.Discard()), svc, codec, modules, auth.CookieConfig{Name: "hospitality_session", Secure: true})

		hash, err := hasher.Hash("p@ss1234")
		Expect(err).NotTo(HaveOccurred())
		Expect(users.Create(ctx, &user.User{Username: "alice", PasswordHash: hash, DisplayName: "Alice", Role: role.Cashier, IsActive: true})).To(Succeed())
	})

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.Login(w, req)
		return w
	}

	sessionCookie := func(w *httptest.ResponseRecorder) *http.Cookie {
		for _, c := range w.Result().Cookies() {
			if c.Name == "hospitality_session" {
				return c
			}
		}
		return nil
	}

	It("should set an HttpOnly session cookie on POST /auth/login", func() {
		w := login(`{"username":"alice","password":"p@ss1234"}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		c := sessionCookie(w)
		Expect(c).NotTo(BeNil())
		Expect(c.HttpOnly).To(BeTrue())
		Expect(c.Secure).To(BeTrue())

		var response auth.LoginResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Token).To(Equal(c.Value))
		Expect(response.TokenType).To(Equal("Bearer"))
		Expect(response.User.Username).To(Equal("alice"))
		Expect(response.ExpiresAt).To(BeTemporally("==", now.Add(time.Hour)))
		Expect(w.Body.String()).NotTo(ContainSubstring("argon2id"))
	})

	It("should answer bad credentials with 401 and no cookie", func() {
		w := login(`{"username":"alice","password":"wrong"}`)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(w.Body.String()).To(ContainSubstring(`"INVALID_CREDENTIALS"`))
		Expect(sessionCookie(w)).To(BeNil())
	})

	It("should reject malformed and incomplete bodies with 400", func() {
		Expect(login(`{"username":`).Code).To(Equal(http.StatusBadRequest))
		Expect(login(`{"username":"alice","password":"x","role":"admin"}`).Code).To(Equal(http.StatusBadRequest))
		Expect(login(`{"username":"alice"}`).Code).To(Equal(http.StatusBadRequest))
	})

	It("should answer throttled logins with 429 and Retry-After", func() {
		for i := 0; i < 3; i++ {
			Expect(login(`{"username":"alice","password":"wrong"}`).Code).To(Equal(http.StatusUnauthorized))
		}
		w := login(`{"username":"alice","password":"p@ss1234"}`)
		Expect(w.Code).To(Equal(http.StatusTooManyRequests))
		Expect(w.Header().Get("Retry-After")).NotTo(BeEmpty())
	})

	Describe("SessionLoader", func() {
		var token string

		BeforeEach(func() {
			w := login(`{"username":"alice","password":"p@ss1234"}`)
			Expect(w.Code).To(Equal(http.StatusOK))
			token = sessionCookie(w).Value
		})

		capture := func(req *http.Request) string {
			var sid string
			handler.SessionLoader(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				sid = internal.SessionIDFromContext(r.Context())
			})).ServeHTTP(httptest.NewRecorder(), req)
			return sid
		}

		It("should accept the cookie or a Bearer header", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req.AddCookie(&http.Cookie{Name: "hospitality_session", Value: token})
			fromCookie := capture(req)
			Expect(fromCookie).NotTo(BeEmpty())

			req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			Expect(capture(req)).To(Equal(fromCookie))

			u, err := svc.CurrentUser(ctx, fromCookie)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Username).To(Equal("alice"))
		})

		It("should treat a tampered token as no session", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req.AddCookie(&http.Cookie{Name: "hospitality_session", Value: token + "x"})
			Expect(capture(req)).To(BeEmpty())
		})

		It("should end the session on POST /auth/logout", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
			req.AddCookie(&http.Cookie{Name: "hospitality_session", Value: token})
			w := httptest.NewRecorder()
			handler.SessionLoader(http.HandlerFunc(handler.Logout)).ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			c := sessionCookie(w)
			Expect(c).NotTo(BeNil())
			Expect(c.MaxAge).To(BeNumerically("<", 0))

			sid, err := codec.Decode(token)
			Expect(err).NotTo(HaveOccurred())
			u, err := svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(BeNil())

			w = httptest.NewRecorder()
			handler.Logout(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
			Expect(w.Code).To(Equal(http.StatusNoContent))
		})
	})

	It("should describe the principal on GET /auth/me", func() {
		u, err := users.FindByUsername(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req = req.WithContext(access.WithUser(req.Context(), u))
		w := httptest.NewRecorder()
		handler.Me(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var response auth.MeResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Role).To(Equal(role.Cashier))
		Expect(response.Modules).To(HaveLen(1))
		Expect(response.Modules[0].Key).To(Equal("pos"))

		w = httptest.NewRecorder()
		handler.Me(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	Describe("GET /auth/me with bad stored data", func() {
		me := func(u *user.User) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req = req.WithContext(access.WithUser(req.Context(), u))
			w := httptest.NewRecorder()
			handler.Me(w, req)
			return w
		}

		It("answers a role outside the enumeration with 403", func() {
			w := me(&user.User{ID: 9, Username: "ghost", Role: role.Role("captain"), IsActive: true})
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(w.Body.String()).To(ContainSubstring(`"INTEGRITY_VIOLATION"`))
		})

		It("answers an unknown role from the module lookup with 403", func() {
			handler.Modules = failingModules{err: fmt.Errorf("%w: %q", role.ErrUnknownRole, "captain")}
			u, err := users.FindByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())

			w := me(u)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(w.Body.String()).To(ContainSubstring(`"INTEGRITY_VIOLATION"`))
		})

		It("keeps storage failures as 503", func() {
			handler.Modules = failingModules{err: errors.New("store down")}
			u, err := users.FindByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())

			w := me(u)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(w.Body.String()).NotTo(ContainSubstring("store down"))
		})
	})
})
