package admin_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"delified/internal/admin"
	"delified/internal/auth/authtest"
	"delified/internal/community"
	communitydb "delified/internal/community/db"
	"delified/internal/database/dbtest"
	"delified/internal/kafka"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/muns"
	mundb "delified/internal/muns/db"
	regdb "delified/internal/registrations/db"
	userdb "delified/internal/users/db"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	router http.Handler
	posts  *community.CommunityService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	bunDB := dbtest.New(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := bunDB.NewInsert().Model(&models.User{ID: "u1", Email: "u1@delified.io", Name: "U1", PasswordHash: "x", Role: models.RoleUser, CreatedAt: now}).Exec(ctx)
	require.NoError(t, err)
	_, err = bunDB.NewInsert().Model(&models.MUN{ID: "m1", OrganizerID: "u1", Name: "HMUN", Date: now.AddDate(0, 1, 0), Venue: "Hall", Currency: "usd", Status: models.MUNStatusPublished, CreatedAt: now}).Exec(ctx)
	require.NoError(t, err)

	munDB := &mundb.DB{Bun: bunDB}
	svc := admin.NewService(
		admin.NewDB(bunDB),
		&userdb.DB{Bun: bunDB},
		munDB,
		muns.NewMUNService(munDB, logger.Nop(), "usd"),
		&regdb.DB{Bun: bunDB},
		logger.Nop(),
	)
	posts := community.NewCommunityService(&communitydb.DB{Bun: bunDB}, &kafka.LocalPublisher{}, logger.Nop())

	h := NewHandler(svc, posts, logger.Nop())
	r := chi.NewRouter()
	r.Route("/api/admin", func(r chi.Router) { h.Routes(r, authtest.Guard{}) })
	return &env{router: r, posts: posts}
}

func (e *env) call(t *testing.T, method, path, body string, role models.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		authtest.As(req, "admin-1", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusUnauthorized, e.call(t, http.MethodGet, "/api/admin/stats", "", "").Code)
	assert.Equal(t, http.StatusForbidden, e.call(t, http.MethodGet, "/api/admin/stats", "", models.RoleUser).Code)
	assert.Equal(t, http.StatusOK, e.call(t, http.MethodGet, "/api/admin/stats", "", models.RoleAdmin).Code)
}

func TestGetStats(t *testing.T) {
	e := newEnv(t)

	rec := e.call(t, http.MethodGet, "/api/admin/stats", "", models.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool              `json:"success"`
		Data    models.AdminStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Data.Users)
	assert.Equal(t, 1, body.Data.MUNs[models.MUNStatusPublished])
}

func TestAdminMutations(t *testing.T) {
	e := newEnv(t)

	rec := e.call(t, http.MethodPut, "/api/admin/users/u1/role", `{"role":"admin"}`, models.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.call(t, http.MethodPut, "/api/admin/users/u1/role", `{"role":"owner"}`, models.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.call(t, http.MethodPut, "/api/admin/users/admin-1/role", `{"role":"user"}`, models.RoleAdmin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.call(t, http.MethodPut, "/api/admin/muns/m1/status", `{"status":"cancelled"}`, models.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.call(t, http.MethodPut, "/api/admin/muns/missing/status", `{"status":"draft"}`, models.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.call(t, http.MethodGet, "/api/admin/muns?status=bogus", "", models.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.call(t, http.MethodGet, "/api/admin/muns/m1/registrations", "", models.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.call(t, http.MethodGet, "/api/admin/muns/m1/analytics", "", models.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestModeratePost(t *testing.T) {
	e := newEnv(t)
	post, err := e.posts.CreatePost(context.Background(), &models.Principal{UserID: "u1", Name: "U1"}, "spam")
	require.NoError(t, err)

	rec := e.call(t, http.MethodDelete, "/api/admin/posts/"+post.ID, "", models.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.call(t, http.MethodDelete, "/api/admin/posts/"+post.ID, "", models.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
