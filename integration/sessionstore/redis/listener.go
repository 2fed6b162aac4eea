package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/logger"
)

// ExpiredChannelPattern matches the expired keyevent channel of every database.
const ExpiredChannelPattern = "__keyevent@*__:expired"

// Listen subscribes to expired key events and turns shadow key expirations
// into Expired session events. It blocks until ctx is cancelled.
//
// Redis delivers these notifications at most once and only to connected
// subscribers, so run Sweep periodically as well.
func (r *Repository) Listen(ctx context.Context) error {
	if r.cfg.ConfigureNotifications {
		if err := r.client.ConfigSet(ctx, "notify-keyspace-events", "Egx").Err(); err != nil {
			r.logger.WarnContext(ctx, "failed to enable keyspace notifications",
				logger.Error(err))
		}
	}

	pubsub := r.client.PSubscribe(ctx, ExpiredChannelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to expired events: %w", err)
	}
	r.logger.InfoContext(ctx, "listening for session expirations",
		slog.String("pattern", ExpiredChannelPattern))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handleExpiredKey(ctx, msg.Payload)
		}
	}
}

func (r *Repository) handleExpiredKey(ctx context.Context, key string) {
	id, ok := strings.CutPrefix(key, r.expiresPrefix())
	if !ok || id == "" {
		return
	}
	if _, err := r.remove(ctx, id, event.Expired); err != nil {
		r.logger.WarnContext(ctx, "failed to remove expired session",
			logger.SessionID(id),
			logger.Error(err))
	}
}

// Sweep scans the namespace and removes every session that has expired,
// publishing an Expired event for each. It returns the number of removed sessions.
func (r *Repository) Sweep(ctx context.Context) (int, error) {
	prefix := r.namespace + ":sessions:"
	expiresPrefix := r.expiresPrefix()
	now := r.now().UnixMilli()

	removed := 0
	iter := r.client.Scan(ctx, 0, prefix+"*", r.cfg.ScanBatchSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasPrefix(key, expiresPrefix) {
			continue
		}

		vals, err := r.client.HMGet(ctx, key, fieldLastAccessed, fieldInterval).Result()
		if err != nil {
			return removed, err
		}
		if !expiredAt(vals, now) {
			continue
		}

		ok, err := r.remove(ctx, strings.TrimPrefix(key, prefix), event.Expired)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return removed, err
	}
	return removed, nil
}

func expiredAt(vals []any, nowMillis int64) bool {
	if len(vals) != 2 {
		return false
	}
	lastRaw, ok1 := vals[0].(string)
	intervalRaw, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return false
	}
	last, err := strconv.ParseInt(lastRaw, 10, 64)
	if err != nil {
		return false
	}
	interval, err := strconv.ParseInt(intervalRaw, 10, 64)
	if err != nil || interval < 0 {
		return false
	}
	return nowMillis-last >= interval
}
