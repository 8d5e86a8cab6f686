package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"delified/internal/logger"

	"github.com/go-redis/redis/v8"
)

const holdPrefix = "checkout_hold:"

// Holds tracks the checkout window of each pending payment as a TTL key.
type Holds struct {
	Client   *redis.Client
	Logger   *logger.Logger
	Duration time.Duration
}

func NewHolds(client *redis.Client, duration time.Duration, log *logger.Logger) *Holds {
	return &Holds{Client: client, Duration: duration, Logger: log}
}

func holdKey(paymentID string) string {
	return holdPrefix + paymentID
}

// Hold starts (or restarts) the checkout window for a payment.
func (h *Holds) Hold(ctx context.Context, paymentID, registrationID string) error {
	if err := h.Client.Set(ctx, holdKey(paymentID), registrationID, h.Duration).Err(); err != nil {
		return fmt.Errorf("failed to set checkout hold: %w", err)
	}
	h.Logger.Debug("REDIS", fmt.Sprintf("Checkout hold set for payment %s (%s)", paymentID, h.Duration))
	return nil
}

func (h *Holds) Release(ctx context.Context, paymentID string) error {
	if err := h.Client.Del(ctx, holdKey(paymentID)).Err(); err != nil {
		return fmt.Errorf("failed to release checkout hold: %w", err)
	}
	return nil
}

// WatchExpired calls onExpire for every checkout hold that times out. It
// blocks until ctx is cancelled. Keyspace notifications are switched on with
// CONFIG SET; when the server refuses that, expiry falls back to the sweeper.
func (h *Holds) WatchExpired(ctx context.Context, onExpire func(ctx context.Context, paymentID string)) error {
	if err := h.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		h.Logger.Warn("REDIS", fmt.Sprintf("Could not enable keyspace notifications: %v", err))
	}

	db := h.Client.Options().DB
	pubsub := h.Client.PSubscribe(ctx, fmt.Sprintf("__keyevent@%d__:expired", db))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to expiry events: %w", err)
	}
	h.Logger.Info("REDIS", fmt.Sprintf("Watching checkout hold expiry on db %d", db))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if paymentID, ok := expiredPaymentID(msg.Payload); ok {
				onExpire(ctx, paymentID)
			}
		}
	}
}

func expiredPaymentID(key string) (string, bool) {
	if !strings.HasPrefix(key, holdPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, holdPrefix)
	return id, id != ""
}
