package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"delified/client"
	"delified/internal/config"
	"delified/internal/database/dbtest"
	"delified/internal/kafka"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/payment/services"
	"delified/internal/sse"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "0123456789abcdef0123456789abcdef",
			SessionTTL:    time.Hour,
			AdminEmail:    "admin@delified.io",
			AdminPassword: "admin-password",
		},
		Payment:  config.PaymentConfig{Currency: "usd"},
		Checkout: config.CheckoutConfig{HoldDuration: 15 * time.Minute, RegistrationLockTimeout: 10 * time.Second},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testConfig()
	broker := sse.NewRegistrationBroker()
	a, err := buildApp(deps{
		Config:    cfg,
		DB:        dbtest.New(t),
		Redis:     rdb,
		Events:    &kafka.LocalPublisher{Broker: broker},
		Broker:    broker,
		Processor: services.ManualProcessor{},
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, a.Auth.EnsureAdmin(context.Background(), cfg.Auth.AdminEmail, cfg.Auth.AdminPassword))

	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)
	return srv
}

func signupAndLogin(t *testing.T, c *client.Client, email, name string) *models.Session {
	t.Helper()
	ctx := context.Background()
	_, err := c.Signup(ctx, models.SignupRequest{Email: email, Password: "password123", Name: name})
	require.NoError(t, err)
	session, err := c.Login(ctx, email, "password123")
	require.NoError(t, err)
	return session
}

func TestPaidRegistrationFlow(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	organizer := client.New(srv.URL)
	signupAndLogin(t, organizer, "org@delified.io", "Organizer")

	mun, err := organizer.CreateMUN(ctx, models.CreateMUNRequest{
		Name:     "Harvard MUN",
		Date:     time.Now().AddDate(0, 1, 0),
		Venue:    "Cambridge",
		Fee:      50,
		Capacity: 10,
		Publish:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MUNStatusPublished, mun.Status)

	delegate := client.New(srv.URL)
	signupAndLogin(t, delegate, "del@delified.io", "Delegate")

	reg, err := delegate.Register(ctx, mun.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPending, reg.Status)

	_, err = delegate.Register(ctx, mun.ID, nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)

	payment, err := delegate.Checkout(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, payment.Status)
	assert.Equal(t, 50.0, payment.Amount)

	payment, err = delegate.Pay(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, payment.Status)

	reg, err = delegate.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)

	png, err := delegate.Badge(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	stats, err := organizer.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Confirmed)
	assert.Equal(t, 50.0, stats[0].Revenue)

	admin := client.New(srv.URL)
	_, err = admin.AdminLogin(ctx, "admin@delified.io", "admin-password")
	require.NoError(t, err)

	overview, err := admin.AdminStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, overview.Users)
	assert.Equal(t, 1, overview.Registrations[models.RegistrationConfirmed])
	assert.Equal(t, 50.0, overview.ConfirmedIncome)

	_, err = delegate.AdminStats(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.StatusCode)
}

func TestCommunityAndLogout(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	alice := client.New(srv.URL)
	signupAndLogin(t, alice, "alice@delified.io", "Alice")
	bob := client.New(srv.URL)
	signupAndLogin(t, bob, "bob@delified.io", "Bob")

	post, err := alice.CreatePost(ctx, "Position papers due Friday")
	require.NoError(t, err)
	assert.Equal(t, "Alice", post.AuthorName)

	liked, err := bob.LikePost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikeCount)
	assert.True(t, liked.LikedByMe)

	_, err = bob.AddComment(ctx, post.ID, "Thanks!")
	require.NoError(t, err)

	anonymous := client.New(srv.URL)
	posts, err := anonymous.ListPosts(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 1, posts[0].CommentCount)
	assert.False(t, posts[0].LikedByMe)

	err = bob.DeletePost(ctx, post.ID)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.StatusCode)

	check, err := alice.Check(ctx)
	require.NoError(t, err)
	assert.True(t, check.Authenticated)

	require.NoError(t, alice.Logout(ctx))
	check, err = alice.Check(ctx)
	require.NoError(t, err)
	assert.False(t, check.Authenticated)
}

func TestCancelledRegistrationIsNotCharged(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	organizer := client.New(srv.URL)
	signupAndLogin(t, organizer, "org@delified.io", "Organizer")
	mun, err := organizer.CreateMUN(ctx, models.CreateMUNRequest{
		Name: "Yale MUN", Date: time.Now().AddDate(0, 1, 0), Venue: "New Haven", Fee: 50, Publish: true,
	})
	require.NoError(t, err)

	delegate := client.New(srv.URL)
	signupAndLogin(t, delegate, "del@delified.io", "Delegate")
	reg, err := delegate.Register(ctx, mun.ID, nil)
	require.NoError(t, err)
	payment, err := delegate.Checkout(ctx, reg.ID)
	require.NoError(t, err)

	_, err = delegate.CancelRegistration(ctx, reg.ID)
	require.NoError(t, err)

	payment, err = delegate.Pay(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, payment.Status)

	admin := client.New(srv.URL)
	_, err = admin.AdminLogin(ctx, "admin@delified.io", "admin-password")
	require.NoError(t, err)

	overview, err := admin.AdminStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, overview.ConfirmedIncome)
	assert.Equal(t, 1, overview.Registrations[models.RegistrationCancelled])

	analytics, err := admin.AdminMUNAnalytics(ctx, mun.ID)
	require.NoError(t, err)
	assert.Zero(t, analytics.Stats.Revenue)
}

func TestDemotedAdminLosesAccess(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	root := client.New(srv.URL)
	_, err := root.AdminLogin(ctx, "admin@delified.io", "admin-password")
	require.NoError(t, err)

	overview, err := root.AdminStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, overview.ConfirmedIncome)

	bob := client.New(srv.URL)
	session := signupAndLogin(t, bob, "bob@delified.io", "Bob")
	_, err = root.AdminSetUserRole(ctx, session.User.ID, models.RoleAdmin)
	require.NoError(t, err)

	_, err = bob.AdminLogin(ctx, "bob@delified.io", "password123")
	require.NoError(t, err)
	_, err = bob.AdminListUsers(ctx, 0, 0)
	require.NoError(t, err)

	_, err = root.AdminSetUserRole(ctx, session.User.ID, models.RoleUser)
	require.NoError(t, err)

	_, err = bob.AdminListUsers(ctx, 0, 0)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.StatusCode)
}
