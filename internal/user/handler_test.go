package user_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/internal/user"
	userPostgres "github.com/frahmantamala/hospitality-access/internal/user/postgres"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// actorID is the admin performing requests in the handler tests.
const actorID int64 = 1000

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

var _ = Describe("User Handler", func() {
	var (
		router  *chi.Mux
		service *user.Service
		revoker *recordingRevoker
	)

	BeforeEach(func() {
		revoker = &recordingRevoker{}
		repo := userPostgres.NewUserRepository(openDB())
		service = user.NewService(repo, plainHasher{}, revoker, &recordingPublisher{}, logger.Discard())
		handler := user.NewHandler(transport.NewBaseHandler(logger.Discard()), service)

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(internal.ContextWithUserID(r.Context(), actorID)))
			})
		})
		router.Get("/users", handler.ListUsers)
		router.Post("/users", handler.CreateUser)
		router.Get("/users/{id}", handler.GetUser)
		router.Patch("/users/{id}", handler.UpdateUser)
		router.Put("/users/{id}/role", handler.ChangeRole)
		router.Put("/users/{id}/password", handler.ResetPassword)
		router.Post("/users/{id}/deactivate", handler.Deactivate)
		router.Post("/users/{id}/reactivate", handler.Reactivate)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	seed := func() *user.User {
		u, err := service.Create(context.Background(), user.CreateUserDTO{
			Username: "bob", Password: "p@ss1234", DisplayName: "Bob", Role: "waiter",
		}, 1)
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	It("creates a user and never returns the hash", func() {
		w := do(http.MethodPost, "/users", `{"username":"Carol","password":"p@ss1234","display_name":"Carol","role":"cashier"}`)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).NotTo(ContainSubstring("hashed:"))
		Expect(w.Body.String()).NotTo(ContainSubstring("password"))

		var created user.User
		Expect(json.NewDecoder(w.Body).Decode(&created)).To(Succeed())
		Expect(created.Username).To(Equal("carol"))
		Expect(created.Role).To(Equal(role.Cashier))
	})

	It("answers a duplicate username with 409", func() {
		seed()
		w := do(http.MethodPost, "/users", `{"username":"BOB","password":"p@ss1234","display_name":"Bob","role":"waiter"}`)
		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(w.Body.String()).To(ContainSubstring(`"USERNAME_TAKEN"`))
	})

	It("answers a role outside the enumeration with 400", func() {
		w := do(http.MethodPost, "/users", `{"username":"dan","password":"p@ss1234","display_name":"Dan","role":"owner"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("lists users filtered by role", func() {
		seed()
		_, err := service.Create(context.Background(), user.CreateUserDTO{
			Username: "eve", Password: "p@ss1234", DisplayName: "Eve", Role: "manager",
		}, 1)
		Expect(err).NotTo(HaveOccurred())

		w := do(http.MethodGet, "/users?role=manager", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		var response user.UsersResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Users).To(HaveLen(1))
		Expect(response.Users[0].Username).To(Equal("eve"))
	})

	It("answers unknown and malformed ids", func() {
		Expect(do(http.MethodGet, "/users/404", "").Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodGet, "/users/abc", "").Code).To(Equal(http.StatusBadRequest))
	})

	It("updates the profile", func() {
		u := seed()
		w := do(http.MethodPatch, "/users/"+itoa(u.ID), `{"display_name":"Robert","email":"bob@example.com"}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		var updated user.User
		Expect(json.NewDecoder(w.Body).Decode(&updated)).To(Succeed())
		Expect(updated.DisplayName).To(Equal("Robert"))
		Expect(updated.Email).To(Equal("bob@example.com"))
		Expect(updated.Username).To(Equal("bob"))
	})

	It("changes the role", func() {
		u := seed()
		w := do(http.MethodPut, "/users/"+itoa(u.ID)+"/role", `{"role":"bartender"}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		got, err := service.Get(context.Background(), u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Role).To(Equal(role.Bartender))
	})

	It("resets the password and revokes sessions", func() {
		u := seed()
		Expect(do(http.MethodPut, "/users/"+itoa(u.ID)+"/password", `{"password":"short"}`).Code).To(Equal(http.StatusBadRequest))

		w := do(http.MethodPut, "/users/"+itoa(u.ID)+"/password", `{"password":"n3w-secret"}`)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(revoker.revoked).To(ContainElement(u.ID))
	})

	It("deactivates and reactivates", func() {
		u := seed()

		Expect(do(http.MethodPost, "/users/"+itoa(u.ID)+"/deactivate", "").Code).To(Equal(http.StatusNoContent))
		got, _ := service.Get(context.Background(), u.ID)
		Expect(got.IsActive).To(BeFalse())

		Expect(do(http.MethodPost, "/users/"+itoa(u.ID)+"/reactivate", "").Code).To(Equal(http.StatusNoContent))
		got, _ = service.Get(context.Background(), u.ID)
		Expect(got.IsActive).To(BeTrue())
	})

	It("refuses self deactivation", func() {
		w := do(http.MethodPost, "/users/"+itoa(actorID)+"/deactivate", "")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring(`"SELF_DEACTIVATION"`))
	})

	Describe("privileged accounts", func() {
		var root *user.User

		BeforeEach(func() {
			var err error
			root, err = service.Create(context.Background(), user.CreateUserDTO{
				Username: "root", Password: "p@ss1234", DisplayName: "Root", Role: "super_admin",
			}, user.ConsoleActor)
			Expect(err).NotTo(HaveOccurred())
		})

		It("answers a non-privileged actor creating a super_admin with 403", func() {
			w := do(http.MethodPost, "/users", `{"username":"evil","password":"p@ss1234","display_name":"Evil","role":"super_admin"}`)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(w.Body.String()).To(ContainSubstring(`"PRIVILEGED_ACCOUNT"`))

			list, err := service.List(context.Background(), user.ListFilter{Role: role.SuperAdmin})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
		})

		It("answers a password reset on a super_admin with 403", func() {
			w := do(http.MethodPut, "/users/"+itoa(root.ID)+"/password", `{"password":"n3w-secret"}`)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(revoker.revoked).To(BeEmpty())
		})

		It("answers deactivating a super_admin with 403", func() {
			w := do(http.MethodPost, "/users/"+itoa(root.ID)+"/deactivate", "")
			Expect(w.Code).To(Equal(http.StatusForbidden))

			got, err := service.Get(context.Background(), root.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsActive).To(BeTrue())
		})
	})
})
