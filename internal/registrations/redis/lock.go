package redis

import (
	"context"
	"fmt"
	"time"

	"delified/internal/logger"

	"github.com/go-redis/redis/v8"
)

// compare-and-delete so a lock is only released by its holder
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client  *redis.Client
	Logger  *logger.Logger
	LockTTL time.Duration
}

func NewRedis(client *redis.Client, lockTTL time.Duration, log *logger.Logger) *Redis {
	return &Redis{Client: client, LockTTL: lockTTL, Logger: log}
}

func lockKey(munID, userID string) string {
	return fmt.Sprintf("registration_lock:%s:%s", munID, userID)
}

// LockRegistration takes the per-(MUN, user) registration lock. It reports
// false when someone else holds it.
func (r *Redis) LockRegistration(ctx context.Context, munID, userID, token string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, lockKey(munID, userID), token, r.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to take registration lock: %w", err)
	}
	if !ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("Registration lock busy for mun %s user %s", munID, userID))
	}
	return ok, nil
}

// UnlockRegistration releases the lock if token still owns it.
func (r *Redis) UnlockRegistration(ctx context.Context, munID, userID, token string) error {
	if err := unlockScript.Run(ctx, r.Client, []string{lockKey(munID, userID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release registration lock: %w", err)
	}
	return nil
}
