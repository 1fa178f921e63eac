package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

const saveLockTTL = 5 * time.Second

// SaveGuard coalesces answer saves per (instance, question) pair. Two
// mechanisms share a Redis keyspace:
//
//   - an in-flight lock rejects concurrent saves for the same question
//   - a cooldown fingerprint drops repeats of an identical payload
//     arriving within the cooldown window
//
// A changed payload always goes through; only byte-identical repeats are
// coalesced. With no Redis client every save proceeds.
type SaveGuard struct {
	redis    *redis.Client
	cooldown time.Duration
}

func NewSaveGuard(redisClient *redis.Client, cooldown time.Duration) *SaveGuard {
	return &SaveGuard{
		redis:    redisClient,
		cooldown: cooldown,
	}
}

func (g *SaveGuard) lockKey(instanceID, questionID uint) string {
	return fmt.Sprintf("save:lock:%d:%d", instanceID, questionID)
}

func (g *SaveGuard) fingerprintKey(instanceID, questionID uint) string {
	return fmt.Sprintf("save:fp:%d:%d", instanceID, questionID)
}

func payloadFingerprint(payload []byte) string {
	h := fnv.New64a()
	h.Write(payload)
	return fmt.Sprintf("%x", h.Sum64())
}

// Begin decides whether a save should proceed. It returns ErrSaveInFlight
// when another save for the pair is mid-write, and (false, nil) when the
// payload is an identical repeat inside the cooldown window.
func (g *SaveGuard) Begin(ctx context.Context, instanceID, questionID uint, payload []byte) (bool, error) {
	if g.redis == nil {
		return true, nil
	}

	fp := payloadFingerprint(payload)

	prev, err := g.redis.Get(ctx, g.fingerprintKey(instanceID, questionID)).Result()
	if err == nil && prev == fp {
		// Identical payload already persisted within the cooldown
		return false, nil
	}

	acquired, err := g.redis.SetNX(ctx, g.lockKey(instanceID, questionID), "1", saveLockTTL).Result()
	if err != nil {
		// Degrade to unguarded saves on cache failure
		return true, nil
	}
	if !acquired {
		return false, ErrSaveInFlight
	}

	return true, nil
}

// End releases the in-flight lock and, when the save succeeded, records
// the payload fingerprint for the cooldown window.
func (g *SaveGuard) End(ctx context.Context, instanceID, questionID uint, payload []byte, saved bool) {
	if g.redis == nil {
		return
	}

	if saved {
		fp := payloadFingerprint(payload)
		g.redis.Set(ctx, g.fingerprintKey(instanceID, questionID), fp, g.cooldown)
	}
	g.redis.Del(ctx, g.lockKey(instanceID, questionID))
}
