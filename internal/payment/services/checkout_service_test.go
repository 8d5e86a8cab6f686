package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"delified/internal/database/dbtest"
	"delified/internal/logger"
	"delified/internal/models"
	payredis "delified/internal/payment/redis"
	"delified/internal/payment/storage"
	regdb "delified/internal/registrations/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor reports whatever state the test sets.
type fakeProcessor struct {
	mu        sync.Mutex
	state     IntentState
	createErr error
	created   int
	cancelled []string
}

func (p *fakeProcessor) Name() string { return "fake" }

func (p *fakeProcessor) CreateIntent(ctx context.Context, payment *models.Payment) (*models.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created++
	return &models.PaymentIntent{Ref: "pi_" + payment.ID, ClientSecret: "secret_" + payment.ID}, nil
}

func (p *fakeProcessor) IntentStatus(ctx context.Context, ref string) (IntentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *fakeProcessor) CancelIntent(ctx context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, ref)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	payments []models.PaymentEvent
	regs     []models.RegistrationEvent
}

func (p *recordingPublisher) PublishRegistration(ctx context.Context, event models.RegistrationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs = append(p.regs, event)
	return nil
}

func (p *recordingPublisher) PublishPayment(ctx context.Context, event models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, event)
	return nil
}

func (p *recordingPublisher) registrationTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.regs))
	for i, e := range p.regs {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc       *CheckoutService
	regs      *regdb.DB
	store     *storage.BunStore
	processor *fakeProcessor
	events    *recordingPublisher
	redis     *miniredis.Miniredis
}

var (
	now      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delegate = &models.Principal{UserID: "delegate-1", Role: models.RoleUser}
	other    = &models.Principal{UserID: "delegate-2", Role: models.RoleUser}
	admin    = &models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bunDB := dbtest.New(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		regs:      &regdb.DB{Bun: bunDB},
		store:     storage.NewBunStore(bunDB),
		processor: &fakeProcessor{state: IntentState{Status: models.StatusPending}},
		events:    &recordingPublisher{},
		redis:     mr,
	}
	f.svc = NewCheckoutService(
		f.store,
		f.regs,
		f.processor,
		payredis.NewHolds(rdb, 15*time.Minute, logger.Nop()),
		f.events,
		15*time.Minute,
		logger.Nop(),
	)
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *fixture) registration(t *testing.T, status models.RegistrationStatus) *models.Registration {
	t.Helper()
	reg := &models.Registration{
		ID:        "reg-" + string(status),
		MUNID:     "mun-1",
		UserID:    delegate.UserID,
		Status:    status,
		Amount:    45.5,
		Currency:  "usd",
		CreatedAt: now,
	}
	require.NoError(t, f.regs.CreateRegistration(context.Background(), reg, 0))
	return reg
}

func (f *fixture) registrationStatus(t *testing.T, id string) models.RegistrationStatus {
	t.Helper()
	reg, err := f.regs.GetRegistration(context.Background(), id)
	require.NoError(t, err)
	return reg.Status
}

func TestCheckout_CreatesPaymentAndHold(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)

	payment, err := f.svc.Checkout(context.Background(), delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, payment.Status)
	assert.Equal(t, 45.5, payment.Amount)
	assert.Equal(t, "usd", payment.Currency)
	assert.Equal(t, "fake", payment.Provider)
	assert.Equal(t, "pi_"+payment.ID, payment.ProviderRef)
	assert.Equal(t, "secret_"+payment.ID, payment.ClientSecret)
	assert.True(t, f.redis.Exists("checkout_hold:"+payment.ID))
	assert.Equal(t, 15*time.Minute, f.redis.TTL("checkout_hold:"+payment.ID))
}

func TestCheckout_ReusesPendingPayment(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.processor.created)
}

func TestCheckout_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.registration(t, models.RegistrationPending)

	_, err := f.svc.Checkout(ctx, other, models.CheckoutRequest{RegistrationID: pending.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: "missing"})
	assert.ErrorIs(t, err, ErrRegistrationNotFound)

	confirmed := &models.Registration{
		ID: "reg-paid", MUNID: "mun-2", UserID: delegate.UserID,
		Status: models.RegistrationConfirmed, Amount: 10, Currency: "usd", CreatedAt: now,
	}
	require.NoError(t, f.regs.CreateRegistration(ctx, confirmed, 0))
	_, err = f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: confirmed.ID})
	assert.ErrorIs(t, err, ErrNotPayable)

	f.processor.createErr = errors.New("stripe down")
	_, err = f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: pending.ID})
	assert.Error(t, err)
}

func TestPay_Success(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	// still pending at the processor
	got, err := f.svc.Pay(ctx, delegate, models.PayRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	f.processor.state = IntentState{Status: models.StatusSuccess}
	got, err = f.svc.Pay(ctx, delegate, models.PayRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)

	assert.Equal(t, models.RegistrationConfirmed, f.registrationStatus(t, reg.ID))
	assert.False(t, f.redis.Exists("checkout_hold:"+payment.ID))
	assert.Equal(t, []string{models.EventRegistrationConfirmed}, f.events.registrationTypes())
	require.Len(t, f.events.payments, 1)
	assert.Equal(t, models.EventPaymentSucceeded, f.events.payments[0].Type)

	// paying again is a no-op
	got, err = f.svc.Pay(ctx, delegate, models.PayRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Len(t, f.events.payments, 1)
}

func TestPay_FailureCancelsRegistration(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	f.processor.state = IntentState{Status: models.StatusFailed, FailureReason: "card declined"}
	got, err := f.svc.Pay(ctx, delegate, models.PayRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "card declined", got.FailureReason)

	assert.Equal(t, models.RegistrationCancelled, f.registrationStatus(t, reg.ID))
	assert.Equal(t, []string{"pi_" + payment.ID}, f.processor.cancelled)
	assert.Equal(t, []string{models.EventRegistrationCancelled}, f.events.registrationTypes())
}

func TestPay_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, other, models.PayRequest{PaymentID: payment.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Pay(ctx, delegate, models.PayRequest{PaymentID: "missing"})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestGet_AdminDoesNotSeeClientSecret(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, delegate, payment.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ClientSecret)

	got, err = f.svc.Get(ctx, admin, payment.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ClientSecret)

	_, err = f.svc.Get(ctx, other, payment.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMarkPaid_AfterExpiryIsRejected(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	expired, err := f.svc.Expire(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, expired.Status)
	assert.Equal(t, models.RegistrationCancelled, f.registrationStatus(t, reg.ID))

	_, err = f.svc.MarkPaid(ctx, payment.ID)
	assert.ErrorIs(t, err, ErrPaymentClosed)

	// expiring twice is harmless
	again, err := f.svc.Expire(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, again.Status)
	assert.Len(t, f.events.registrationTypes(), 1)
}

func TestSweep_ExpiresStalePayments(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a fresh payment is still inside its window")

	f.svc.now = func() time.Time { return now.Add(20 * time.Minute) }
	n, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestOnHoldExpired_IgnoresUnknownPayment(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, func() { f.svc.OnHoldExpired(context.Background(), "missing") })
}

func TestManualProcessor(t *testing.T) {
	var p ManualProcessor
	intent, err := p.CreateIntent(context.Background(), &models.Payment{ID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, "manual_pay-1", intent.Ref)

	state, err := p.IntentStatus(context.Background(), intent.Ref)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, state.Status)

	_, err = p.CreateIntent(context.Background(), &models.Payment{})
	assert.ErrorIs(t, err, ErrProcessor)
}

func TestPay_RegistrationCancelledDuringCheckout(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)

	_, err = f.regs.UpdateStatus(ctx, reg.ID, models.RegistrationCancelled, models.RegistrationPending)
	require.NoError(t, err)

	f.processor.state = IntentState{Status: models.StatusSuccess}
	_, err = f.svc.Pay(ctx, delegate, models.PayRequest{PaymentID: payment.ID})
	assert.ErrorIs(t, err, ErrNotPayable)

	got, err := f.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, []string{"pi_" + payment.ID}, f.processor.cancelled)
	assert.Equal(t, models.RegistrationCancelled, f.registrationStatus(t, reg.ID))
	assert.Empty(t, f.events.payments)
}

func TestCancelForRegistration(t *testing.T) {
	f := newFixture(t)
	reg := f.registration(t, models.RegistrationPending)
	ctx := context.Background()

	require.NoError(t, f.svc.CancelForRegistration(ctx, reg.ID), "no checkout yet")

	payment, err := f.svc.Checkout(ctx, delegate, models.CheckoutRequest{RegistrationID: reg.ID})
	require.NoError(t, err)
	_, err = f.regs.UpdateStatus(ctx, reg.ID, models.RegistrationCancelled, models.RegistrationPending)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelForRegistration(ctx, reg.ID))

	got, err := f.store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.False(t, f.redis.Exists("checkout_hold:"+payment.ID))

	// a later success is not applied to the cancelled payment
	f.processor.state = IntentState{Status: models.StatusSuccess}
	got, err = f.svc.Pay(ctx, delegate, models.PayRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Empty(t, f.events.registrationTypes())
}
