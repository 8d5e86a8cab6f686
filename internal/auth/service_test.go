package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"delified/internal/database/dbtest"
	"delified/internal/logger"
	"delified/internal/models"
	userdb "delified/internal/users/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	svc := NewService(
		&userdb.DB{Bun: dbtest.New(t)},
		NewRedisSessionStore(rdb),
		NewTokenManager(testSecret, time.Hour),
		logger.Nop(),
	)
	return svc, mr
}

func signup(t *testing.T, svc *Service, email string) *models.User {
	t.Helper()
	user, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    email,
		Password: "correct-horse",
		Name:     "Delegate",
	})
	require.NoError(t, err)
	return user
}

func TestSignup_NormalisesEmailAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := signup(t, svc, "  Ada@Example.COM ")
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	_, err := svc.Signup(ctx, models.SignupRequest{Email: "ada@example.com", Password: "another-pass", Name: "Ada"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	user := signup(t, svc, "ada@example.com")

	t.Run("valid credentials open a session", func(t *testing.T) {
		session, err := svc.Login(ctx, models.LoginRequest{Email: "ADA@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.Equal(t, user.ID, session.User.ID)
		assert.NotEmpty(t, session.Token)

		claims, err := svc.Tokens.Parse(session.Token)
		require.NoError(t, err)
		assert.True(t, mr.Exists("session:"+claims.ID))
		assert.Equal(t, user.ID, claims.Subject)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, err := svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signup(t, svc, "ada@example.com")

	session, err := svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	principal, err := svc.Check(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", principal.Email)

	require.NoError(t, svc.Logout(ctx, session.Token))
	_, err = svc.Check(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// idempotent, and garbage tokens are ignored
	assert.NoError(t, svc.Logout(ctx, session.Token))
	assert.NoError(t, svc.Logout(ctx, "not-a-token"))
}

func TestCheck_ExpiredToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signup(t, svc, "ada@example.com")

	session, err := svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	svc.Tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Check(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdminLoginAndEnsureAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signup(t, svc, "ada@example.com")

	_, err := svc.AdminLogin(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrNotAdmin)

	require.NoError(t, svc.EnsureAdmin(ctx, "Root@Delified.io", "admin-password"))
	// second bootstrap is a no-op
	require.NoError(t, svc.EnsureAdmin(ctx, "root@delified.io", "admin-password"))

	session, err := svc.AdminLogin(ctx, models.LoginRequest{Email: "root@delified.io", Password: "admin-password"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, session.User.Role)

	// existing accounts are promoted and keep their password
	require.NoError(t, svc.EnsureAdmin(ctx, "ada@example.com", "ignored"))
	_, err = svc.AdminLogin(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	assert.NoError(t, err)
}

func TestParse_RejectsForeignSignature(t *testing.T) {
	other := NewTokenManager("ffffffffffffffffffffffffffffffff", time.Hour)
	token, _, err := other.Issue(&models.User{ID: "u1", Email: "a@b.io", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type stubVerifier struct {
	principal *models.Principal
}

func (s stubVerifier) Verify(ctx context.Context, raw string) (*models.Principal, error) {
	if s.principal == nil || raw != "external" {
		return nil, ErrInvalidToken
	}
	return s.principal, nil
}

func TestAuthenticatorMiddleware(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signup(t, svc, "ada@example.com")
	session, err := svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	external := stubVerifier{principal: &models.Principal{UserID: "kc-1", Role: models.RoleAdmin}}
	authn := NewAuthenticator(logger.Nop(), svc, external)

	var seen *models.Principal
	protected := authn.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: session.Token})
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, session.User.ID, seen.UserID)
	})

	t.Run("bearer falls through to second verifier", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer external")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "kc-1", seen.UserID)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("require admin", func(t *testing.T) {
		admin := authn.Middleware(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		rec := httptest.NewRecorder()
		admin.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer external")
		rec = httptest.NewRecorder()
		admin.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("optional lets anonymous through", func(t *testing.T) {
		seen = &models.Principal{}
		h := authn.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = PrincipalFrom(r.Context())
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Nil(t, seen)
	})
}

func TestOIDCClaimsPrincipal(t *testing.T) {
	c := oidcClaims{Sub: "kc-1", Email: "a@b.io", PreferredUsername: "ada"}
	c.RealmAccess.Roles = []string{"offline_access", "admin"}

	p := c.principal()
	assert.Equal(t, "ada", p.Name)
	assert.True(t, p.IsAdmin())
}

func TestVerify_UsesCurrentRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.EnsureAdmin(ctx, "root@delified.io", "admin-password"))

	session, err := svc.AdminLogin(ctx, models.LoginRequest{Email: "root@delified.io", Password: "admin-password"})
	require.NoError(t, err)

	principal, err := svc.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())

	require.NoError(t, svc.Users.UpdateRole(ctx, session.User.ID, models.RoleUser))

	principal, err = svc.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.False(t, principal.IsAdmin(), "demotion applies to tokens issued before it")
	assert.Equal(t, session.User.ID, principal.UserID)
}

func TestVerify_RejectsDeletedAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signup(t, svc, "ada@example.com")
	session, err := svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	bunDB := svc.Users.(*userdb.DB).Bun
	_, err = bunDB.NewDelete().Model((*models.User)(nil)).Where("id = ?", session.User.ID).Exec(ctx)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
