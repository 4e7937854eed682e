package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisTracker keeps each record under its own key with an expiry equal to
// the TTL, so Redis drops records that stop receiving heartbeats. A set per
// note lists its members and a channel per note announces changes to every
// server instance.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

func NewRedisTracker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "presence").Logger(),
		now:    time.Now,
	}
}

func recordKey(noteID, userID string) string {
	return fmt.Sprintf("presence:%s:user:%s", noteID, userID)
}

func membersKey(noteID string) string {
	return fmt.Sprintf("presence:%s:members", noteID)
}

func channelName(noteID string) string {
	return fmt.Sprintf("presence:%s:changes", noteID)
}

func (t *RedisTracker) Register(ctx context.Context, noteID string, who domain.Identity, sessionID string) error {
	return t.write(ctx, newRecord(noteID, who, sessionID, t.now()), true)
}

func (t *RedisTracker) write(ctx context.Context, p *domain.Presence, announce bool) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode presence: %w", err)
	}

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(p.NoteID, p.UserID), data, t.ttl)
		pipe.SAdd(ctx, membersKey(p.NoteID), p.UserID)
		if announce {
			pipe.Publish(ctx, channelName(p.NoteID), p.UserID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register presence: %w", err)
	}
	return nil
}

func (t *RedisTracker) Heartbeat(ctx context.Context, noteID string, who domain.Identity, sessionID string) error {
	data, err := t.client.Get(ctx, recordKey(noteID, who.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return t.Register(ctx, noteID, who, sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}

	var p domain.Presence
	if err := json.Unmarshal(data, &p); err != nil {
		return t.Register(ctx, noteID, who, sessionID)
	}
	p.HeartbeatAt = t.now()
	return t.write(ctx, &p, false)
}

func (t *RedisTracker) Unregister(ctx context.Context, noteID, userID string) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(noteID, userID))
		pipe.SRem(ctx, membersKey(noteID), userID)
		pipe.Publish(ctx, channelName(noteID), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

func (t *RedisTracker) List(ctx context.Context, noteID string) ([]*domain.Presence, error) {
	members, err := t.client.SMembers(ctx, membersKey(noteID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	if len(members) == 0 {
		return []*domain.Presence{}, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = recordKey(noteID, m)
	}
	values, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}

	records := make([]*domain.Presence, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, members[i])
			continue
		}
		var p domain.Presence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		records = append(records, &p)
	}

	if len(expired) > 0 {
		if err := t.client.SRem(ctx, membersKey(noteID), expired...).Err(); err != nil {
			t.logger.Debug().Err(err).Msg("failed to prune expired members")
		}
	}

	sortByConnection(records)
	return live(records, t.now(), t.ttl), nil
}

type redisWatch struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
}

func (w *redisWatch) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.pubsub.Close()
	})
	return err
}

// Watch re-reads the set whenever the note's channel fires, and at least once
// per TTL so silent key expiries are noticed.
func (t *RedisTracker) Watch(ctx context.Context, noteID string, fn func([]*domain.Presence)) (store.Subscription, error) {
	pubsub := t.client.Subscribe(ctx, channelName(noteID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to watch presence: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	w := &redisWatch{pubsub: pubsub, cancel: cancel}

	go func() {
		refresh := time.NewTicker(t.ttl)
		defer refresh.Stop()
		msgs := pubsub.Channel()

		t.deliver(watchCtx, noteID, fn)
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
			case <-refresh.C:
			}
			t.deliver(watchCtx, noteID, fn)
		}
	}()

	return w, nil
}

func (t *RedisTracker) deliver(ctx context.Context, noteID string, fn func([]*domain.Presence)) {
	records, err := t.List(ctx, noteID)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn().Err(err).Str("note_id", noteID).Msg("presence refresh failed")
		}
		return
	}
	fn(records)
}

// Sweep prunes member sets whose record keys have expired and announces the
// change to watchers.
func (t *RedisTracker) Sweep(ctx context.Context) (int, error) {
	removed := 0
	var cursor uint64
	for {
		keys, next, err := t.client.Scan(ctx, cursor, "presence:*:members", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan presence: %w", err)
		}

		for _, key := range keys {
			noteID := noteFromMembersKey(key)
			if noteID == "" {
				continue
			}
			members, err := t.client.SMembers(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to sweep presence: %w", err)
			}
			for _, userID := range members {
				n, err := t.client.Exists(ctx, recordKey(noteID, userID)).Result()
				if err != nil {
					return removed, fmt.Errorf("failed to sweep presence: %w", err)
				}
				if n > 0 {
					continue
				}
				if err := t.client.SRem(ctx, key, userID).Err(); err != nil {
					return removed, fmt.Errorf("failed to sweep presence: %w", err)
				}
				t.client.Publish(ctx, channelName(noteID), userID)
				removed++
			}
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func noteFromMembersKey(key string) string {
	const prefix, suffix = "presence:", ":members"
	if len(key) <= len(prefix)+len(suffix) {
		return ""
	}
	if key[:len(prefix)] != prefix || key[len(key)-len(suffix):] != suffix {
		return ""
	}
	return key[len(prefix) : len(key)-len(suffix)]
}
