package auth_test

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/auth"
	authPostgres "github.com/frahmantamala/hospitality-access/internal/auth/postgres"
	sessionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/session"
	userDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/user"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/user"
	userPostgres "github.com/frahmantamala/hospitality-access/internal/user/postgres"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// countingUsers records how often the credential store is consulted.
type countingUsers struct {
	auth.UserStore
	lookups int
}

func (c *countingUsers) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	c.lookups++
	return c.UserStore.FindByUsername(ctx, username)
}

type failingUsers struct {
	auth.UserStore
}

func (failingUsers) FindByUsername(context.Context, string) (*user.User, error) {
	return nil, errors.New("connection reset")
}

var _ = Describe("Auth Service", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		users    user.RepositoryAPI
		sessions auth.SessionRepository
		hasher   *auth.PasswordHasher
		svc      *auth.Service
		now      time.Time
		clock    func() time.Time
	)

	newService := func(store auth.UserStore, throttle *auth.LoginThrottle) *auth.Service {
		s, err := auth.NewService(store, sessions, hasher, auth.Options{
			SessionLifetime: 2 * time.Hour,
			Throttle:        throttle,
			Now:             clock,
		}, logger.Discard())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	createUser := func(username, password string, r role.Role) *user.User {
		hash, err := hasher.Hash(password)
		Expect(err).NotTo(HaveOccurred())
		u := &user.User{Username: username, PasswordHash: hash, DisplayName: username, Role: r, IsActive: true}
		Expect(users.Create(ctx, u)).To(Succeed())
		return u
	}

	countSessions := func() int64 {
		var n int64
		Expect(db.Model(&sessionDatamodel.Session{}).Count(&n).Error).To(Succeed())
		return n
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&userDatamodel.User{}, &sessionDatamodel.Session{})).To(Succeed())

		now = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
		clock = func() time.Time { return now }
		users = userPostgres.NewUserRepository(db)
		sessions = authPostgres.NewSessionRepository(db)
		hasher = auth.NewPasswordHasher(fastPasswordConfig())
		svc = newService(users, nil)
	})

	Describe("Login", func() {
		It("opens a session with the role snapshot and client info", func() {
			u := createUser("alice", "p@ss1234", role.Cashier)
			cctx := internal.ContextWithClient(ctx, internal.ClientInfo{RemoteAddr: "10.0.0.5:1234", UserAgent: "till/1.0"})

			sess, got, err := svc.Login(cctx, auth.LoginDTO{Username: "  ALICE ", Password: "p@ss1234"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(u.ID))
			Expect(sess.Role).To(Equal(role.Cashier))
			Expect(sess.ExpiresAt).To(BeTemporally("==", now.Add(2*time.Hour)))
			Expect(sess.ID).To(HaveLen(64))

			var row sessionDatamodel.Session
			Expect(db.First(&row).Error).To(Succeed())
			Expect(row.ID).To(Equal(auth.HashSessionID(sess.ID)))
			Expect(row.ID).NotTo(Equal(sess.ID))
			Expect(row.RemoteAddr).To(Equal("10.0.0.5:1234"))
			Expect(row.UserAgent).To(Equal("till/1.0"))

			stored, err := users.FindByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.LastLoginAt).NotTo(BeNil())
		})

		It("returns the same error for unknown users, wrong passwords and inactive accounts", func() {
			u := createUser("alice", "p@ss1234", role.Cashier)
			createUser("bob", "p@ss1234", role.Waiter)
			Expect(users.SetActive(ctx, u.ID, false)).To(Succeed())

			_, _, errUnknown := svc.Login(ctx, auth.LoginDTO{Username: "nobody", Password: "p@ss1234"})
			_, _, errWrong := svc.Login(ctx, auth.LoginDTO{Username: "bob", Password: "wrong-password"})
			_, _, errInactive := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "p@ss1234"})

			Expect(errUnknown).To(Equal(auth.ErrInvalidCredentials))
			Expect(errWrong).To(Equal(auth.ErrInvalidCredentials))
			Expect(errInactive).To(Equal(auth.ErrInvalidCredentials))
			Expect(countSessions()).To(BeZero())
		})

		It("rejects empty fields before touching the store", func() {
			counting := &countingUsers{UserStore: users}
			svc = newService(counting, nil)

			_, _, err := svc.Login(ctx, auth.LoginDTO{Username: "  ", Password: "x"})
			var verr auth.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())

			_, _, err = svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: ""})
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(counting.lookups).To(BeZero())
		})

		It("throttles repeated attempts without consulting the store", func() {
			createUser("alice", "p@ss1234", role.Cashier)
			counting := &countingUsers{UserStore: users}
			throttle := auth.NewLoginThrottle(internal.LoginThrottleConfig{Enabled: true, PerMinute: 1, Burst: 2}, clock)
			svc = newService(counting, throttle)

			for i := 0; i < 2; i++ {
				_, _, err := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "wrong"})
				Expect(err).To(Equal(auth.ErrInvalidCredentials))
			}
			_, _, err := svc.Login(ctx, auth.LoginDTO{Username: "Alice", Password: "p@ss1234"})
			Expect(err).To(Equal(auth.ErrTooManyAttempts))
			Expect(counting.lookups).To(Equal(2))

			_, _, err = svc.Login(ctx, auth.LoginDTO{Username: "ghost", Password: "x"})
			Expect(err).To(Equal(auth.ErrInvalidCredentials))
		})

		It("upgrades legacy bcrypt hashes after a successful login", func() {
			legacy, err := bcrypt.GenerateFromPassword([]byte("p@ss1234"), bcrypt.MinCost)
			Expect(err).NotTo(HaveOccurred())
			u := &user.User{Username: "legacy", PasswordHash: string(legacy), DisplayName: "Legacy", Role: role.Waiter, IsActive: true}
			Expect(users.Create(ctx, u)).To(Succeed())

			_, _, err = svc.Login(ctx, auth.LoginDTO{Username: "legacy", Password: "p@ss1234"})
			Expect(err).NotTo(HaveOccurred())

			stored, err := users.FindByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.HasPrefix(stored.PasswordHash, "$argon2id$")).To(BeTrue())
		})

		It("reports storage failures as unavailable", func() {
			svc = newService(failingUsers{UserStore: users}, nil)
			_, _, err := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "p@ss1234"})
			Expect(errors.Is(err, auth.ErrUnavailable)).To(BeTrue())
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeFalse())
		})
	})

	Describe("sessions", func() {
		var (
			u   *user.User
			sid string
		)

		BeforeEach(func() {
			u = createUser("alice", "p@ss1234", role.Cashier)
			sess, _, err := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "p@ss1234"})
			Expect(err).NotTo(HaveOccurred())
			sid = sess.ID
		})

		It("resolves the live user and role", func() {
			got, err := svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(u.ID))

			Expect(users.UpdateRole(ctx, u.ID, role.Manager)).To(Succeed())
			r, ok, err := svc.GetRole(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(r).To(Equal(role.Manager))
		})

		It("treats unknown and empty session ids as no session", func() {
			for _, id := range []string{"", "deadbeef", strings.Repeat("z", 500)} {
				got, err := svc.CurrentUser(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(BeNil())
			}
			_, ok, err := svc.GetRole(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("logs out idempotently", func() {
			Expect(svc.Logout(ctx, sid)).To(Succeed())
			Expect(svc.Logout(ctx, sid)).To(Succeed())
			Expect(svc.Logout(ctx, "")).To(Succeed())
			Expect(svc.Logout(ctx, "never-issued")).To(Succeed())

			got, err := svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("expires exactly at the expiry instant", func() {
			now = now.Add(2*time.Hour - time.Nanosecond)
			got, err := svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())

			now = now.Add(time.Nanosecond)
			got, err = svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("revokes the session of a deactivated user on sight", func() {
			Expect(users.SetActive(ctx, u.ID, false)).To(Succeed())
			got, err := svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())

			Expect(users.SetActive(ctx, u.ID, true)).To(Succeed())
			got, err = svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("flags a stored role outside the enumeration", func() {
			Expect(db.Model(&userDatamodel.User{}).Where("id = ?", u.ID).Update("role", "Admin").Error).To(Succeed())
			_, ok, err := svc.GetRole(ctx, sid)
			Expect(ok).To(BeFalse())
			Expect(errors.Is(err, role.ErrUnknownRole)).To(BeTrue())
		})

		It("revokes every session of a user and purges dead rows", func() {
			_, _, err := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "p@ss1234"})
			Expect(err).NotTo(HaveOccurred())
			Expect(countSessions()).To(Equal(int64(2)))

			Expect(svc.LogoutUser(ctx, u.ID)).To(Succeed())
			got, err := svc.CurrentUser(ctx, sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())

			n, err := svc.PurgeExpired(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
			Expect(countSessions()).To(BeZero())
		})
	})
})
