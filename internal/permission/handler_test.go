package permission_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	permissionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/permission"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	permissionPostgres "github.com/frahmantamala/hospitality-access/internal/permission/postgres"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type downService struct {
	permission.ServiceAPI
}

func (downService) Matrix(context.Context, role.Role) ([]permission.Capability, error) {
	return nil, errStoreDown
}

func routes(h *permission.Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(internal.ContextWithUserID(r.Context(), 7)))
		})
	})
	router.Get("/permissions/catalogue", h.GetCatalogue)
	router.Get("/permissions/roles/{role}", h.GetRoleMatrix)
	router.Put("/permissions/roles/{role}/{module}/{action}", h.GrantCapability)
	router.Delete("/permissions/roles/{role}/{module}/{action}", h.RevokeCapability)
	router.Get("/permissions/users/{id}", h.GetUserOverrides)
	router.Put("/permissions/users/{id}/{module}/{action}", h.SetUserOverride)
	router.Delete("/permissions/users/{id}/{module}/{action}", h.ClearUserOverride)
	return router
}

var _ = Describe("Permission Handler", func() {
	var (
		ctx    context.Context
		svc    *permission.Service
		router *chi.Mux
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
		Expect(db.AutoMigrate(permissionDatamodel.All()...)).To(Succeed())

		repo := permissionPostgres.NewPermissionRepository(db)
		svc = permission.NewService(permission.NewCachedStore(repo, 0), &recordingPublisher{}, logger.Discard(), nil)
		Expect(svc.SeedCatalogue(ctx)).To(Succeed())

		router = routes(permission.NewHandler(transport.NewBaseHandler(logger.Discard()), svc))
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("serves the catalogue", func() {
		w := do(http.MethodGet, "/permissions/catalogue", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		var cat permission.Catalogue
		Expect(json.NewDecoder(w.Body).Decode(&cat)).To(Succeed())
		Expect(cat.Modules).NotTo(BeEmpty())
		Expect(cat.Modules[0].Key).To(Equal("pos"))
		Expect(cat.Actions).To(ContainElement(HaveField("Key", permission.ActionVoid)))
	})

	It("grants and revokes through the role routes", func() {
		w := do(http.MethodPut, "/permissions/roles/cashier/pos/void", `{"requires_approval":true}`)
		Expect(w.Code).To(Equal(http.StatusNoContent))

		ok, err := svc.IsGranted(ctx, role.Cashier, "pos", permission.ActionVoid)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		w = do(http.MethodGet, "/permissions/roles/cashier", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		var matrix permission.MatrixResponse
		Expect(json.NewDecoder(w.Body).Decode(&matrix)).To(Succeed())
		Expect(matrix.Role).To(Equal(role.Cashier))
		Expect(matrix.Capabilities).To(ContainElement(permission.Capability{
			Module: "pos", Action: permission.ActionVoid, Granted: true, RequiresApproval: true, Sensitive: true,
		}))

		Expect(do(http.MethodDelete, "/permissions/roles/cashier/pos/void", "").Code).To(Equal(http.StatusNoContent))
		ok, err = svc.IsGranted(ctx, role.Cashier, "pos", permission.ActionVoid)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("grants without a body", func() {
		Expect(do(http.MethodPut, "/permissions/roles/waiter/restaurant/view", "").Code).To(Equal(http.StatusNoContent))
	})

	It("rejects unknown roles and capabilities with 400", func() {
		w := do(http.MethodPut, "/permissions/roles/Cashier/pos/void", "")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring(`"UNKNOWN_ROLE"`))

		w = do(http.MethodPut, "/permissions/roles/cashier/casino/view", "")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring(`"UNKNOWN_CAPABILITY"`))

		Expect(do(http.MethodGet, "/permissions/roles/owner", "").Code).To(Equal(http.StatusBadRequest))
	})

	It("manages per-user overrides", func() {
		expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		w := do(http.MethodPut, "/permissions/users/42/pos/refund", `{"effect":"allow","expires_at":"`+expires+`","reason":"covering shift"}`)
		Expect(w.Code).To(Equal(http.StatusNoContent))

		w = do(http.MethodGet, "/permissions/users/42", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		var response permission.OverridesResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.UserID).To(Equal(int64(42)))
		Expect(response.Overrides).To(HaveLen(1))
		Expect(response.Overrides[0].Effect).To(Equal(permission.EffectAllow))
		Expect(response.Overrides[0].Reason).To(Equal("covering shift"))

		Expect(do(http.MethodDelete, "/permissions/users/42/pos/refund", "").Code).To(Equal(http.StatusNoContent))
		list, err := svc.Overrides(ctx, 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
	})

	It("validates override bodies", func() {
		Expect(do(http.MethodPut, "/permissions/users/42/pos/refund", `{"effect":"maybe"}`).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPut, "/permissions/users/x/pos/refund", `{"effect":"deny"}`).Code).To(Equal(http.StatusBadRequest))
	})

	It("answers storage failures with 503 rather than a denial", func() {
		router = routes(permission.NewHandler(transport.NewBaseHandler(logger.Discard()), downService{}))

		w := do(http.MethodGet, "/permissions/roles/cashier", "")
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(w.Body.String()).NotTo(ContainSubstring("store down"))
	})
})
