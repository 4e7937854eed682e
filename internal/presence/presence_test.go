package presence

import (
	"context"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
	"notemv-server/internal/store/memory"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Identity{ID: "alice", DisplayName: "Alice"}
	bob   = domain.Identity{ID: "bob", DisplayName: "Bob"}
)

type watchLog struct {
	mu   sync.Mutex
	sets [][]*domain.Presence
}

func (w *watchLog) add(records []*domain.Presence) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sets = append(w.sets, records)
}

func (w *watchLog) last() []*domain.Presence {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.sets) == 0 {
		return nil
	}
	return w.sets[len(w.sets)-1]
}

func (w *watchLog) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sets)
}

func newStoreTracker() *StoreTracker {
	return NewStoreTracker(repository.NewPresenceRepository(memory.New()), time.Minute)
}

func TestRandomColor(t *testing.T) {
	pattern := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, pattern, RandomColor())
	}
}

func TestRegisterIsUpsert(t *testing.T) {
	ctx := context.Background()
	tr := newStoreTracker()

	require.NoError(t, tr.Register(ctx, "x", alice, "s1"))
	require.NoError(t, tr.Register(ctx, "x", alice, "s2"))

	records, err := tr.List(ctx, "x")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "s2", records[0].SessionID)
	assert.Equal(t, "Alice", records[0].DisplayName)
}

func TestTwoRegistrationsOneUnregister(t *testing.T) {
	ctx := context.Background()
	tr := newStoreTracker()

	var log watchLog
	sub, err := tr.Watch(ctx, "x", log.add)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, tr.Register(ctx, "x", alice, "s1"))
	require.NoError(t, tr.Register(ctx, "x", alice, "s2"))
	require.NoError(t, tr.Register(ctx, "x", bob, "s3"))
	require.NoError(t, tr.Unregister(ctx, "x", "alice"))

	require.Eventually(t, func() bool { return log.count() == 5 }, time.Second, 5*time.Millisecond)
	last := log.last()
	require.Len(t, last, 1)
	assert.Equal(t, "bob", last[0].UserID)
}

func TestUnregisterMissingIsNoop(t *testing.T) {
	tr := newStoreTracker()
	assert.NoError(t, tr.Unregister(context.Background(), "x", "nobody"))
}

func TestHeartbeatRecreatesRemovedRecord(t *testing.T) {
	ctx := context.Background()
	tr := newStoreTracker()

	require.NoError(t, tr.Register(ctx, "x", alice, "tab-1"))
	require.NoError(t, tr.Unregister(ctx, "x", "alice"))
	require.NoError(t, tr.Heartbeat(ctx, "x", alice, "tab-2"))

	records, err := tr.List(ctx, "x")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tab-2", records[0].SessionID)
}

func TestStaleRecordsAreHiddenAndSwept(t *testing.T) {
	ctx := context.Background()
	tr := newStoreTracker()

	require.NoError(t, tr.Register(ctx, "x", alice, "s1"))
	require.NoError(t, tr.Register(ctx, "x", bob, "s2"))

	tr.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	require.NoError(t, tr.Heartbeat(ctx, "x", bob, "s2"))

	records, err := tr.List(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, records)

	tr.now = time.Now
	records, err = tr.List(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	tr.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	n, err := tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tr.now = time.Now
	records, err = tr.List(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWithout(t *testing.T) {
	records := []*domain.Presence{{UserID: "alice"}, {UserID: "bob"}}
	out := Without(records, "alice")
	require.Len(t, out, 1)
	assert.Equal(t, "bob", out[0].UserID)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, newStoreTracker(), 5*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "presence:n1:user:u1", recordKey("n1", "u1"))
	assert.Equal(t, "n1", noteFromMembersKey(membersKey("n1")))
	assert.Equal(t, "", noteFromMembersKey("presence:n1:user:u1"))
	assert.Equal(t, "", noteFromMembersKey("other"))
}

// The Redis tracker runs against a live server when REDIS_ADDR is set.
func TestRedisTracker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	noteID := "test-" + time.Now().Format("150405.000000000")
	tr := NewRedisTracker(client, time.Minute, zerolog.Nop())

	var log watchLog
	sub, err := tr.Watch(ctx, noteID, log.add)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, tr.Register(ctx, noteID, alice, "s1"))
	require.NoError(t, tr.Register(ctx, noteID, alice, "s2"))
	require.NoError(t, tr.Heartbeat(ctx, noteID, alice, "s2"))

	records, err := tr.List(ctx, noteID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, tr.Unregister(ctx, noteID, "alice"))
	require.Eventually(t, func() bool {
		last := log.last()
		return log.count() > 1 && last != nil && len(last) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
