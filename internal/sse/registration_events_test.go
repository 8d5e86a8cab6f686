package sse

import (
	"context"
	"testing"
	"time"

	"delified/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBrokerDeliversPerMUN(t *testing.T) {
	b := NewRegistrationBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mun1 := b.Subscribe(ctx, "mun-1")
	mun2 := b.Subscribe(ctx, "mun-2")

	b.Publish(models.RegistrationEvent{Type: models.EventRegistrationCreated, MUNID: "mun-1", RegistrationID: "r1"})

	select {
	case ev := <-mun1:
		assert.Equal(t, "r1", ev.RegistrationID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-mun2:
		t.Fatalf("unexpected event for mun-2: %+v", ev)
	default:
	}
}

func TestBrokerDropsForSlowClients(t *testing.T) {
	b := NewRegistrationBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "mun-1")
	for i := 0; i < clientBuffer+5; i++ {
		b.Publish(models.RegistrationEvent{MUNID: "mun-1"})
	}
	assert.Len(t, ch, clientBuffer)
}

func TestBrokerUnsubscribesOnCancel(t *testing.T) {
	b := NewRegistrationBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, "mun-1")
	require.Equal(t, 1, b.ClientCount("mun-1"))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, b.ClientCount("mun-1"))

	// publishing with no subscribers is a no-op
	b.Publish(models.RegistrationEvent{MUNID: "mun-1"})
}
