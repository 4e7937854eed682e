// Package presence tracks who has a note open. Records are refreshed by a
// heartbeat and treated as absent once they miss it for longer than the
// TTL, so a client that disappears without unregistering does not linger.
package presence

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"

	"github.com/rs/zerolog"
)

const DefaultTTL = 45 * time.Second

type Tracker interface {
	Register(ctx context.Context, noteID string, who domain.Identity, sessionID string) error
	Heartbeat(ctx context.Context, noteID string, who domain.Identity, sessionID string) error
	Unregister(ctx context.Context, noteID, userID string) error
	List(ctx context.Context, noteID string) ([]*domain.Presence, error)
	// Watch calls fn with the full live set on subscription and after every
	// change. Callers filter out their own user.
	Watch(ctx context.Context, noteID string, fn func([]*domain.Presence)) (store.Subscription, error)
	// Sweep removes records whose heartbeat is older than the TTL.
	Sweep(ctx context.Context) (int, error)
}

// RandomColor returns a display color such as "#3fa2c9".
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}

func newRecord(noteID string, who domain.Identity, sessionID string, now time.Time) *domain.Presence {
	return &domain.Presence{
		NoteID:      noteID,
		UserID:      who.ID,
		DisplayName: who.DisplayName,
		AvatarURL:   who.AvatarURL,
		Color:       RandomColor(),
		SessionID:   sessionID,
		ConnectedAt: now,
		HeartbeatAt: now,
	}
}

func live(records []*domain.Presence, now time.Time, ttl time.Duration) []*domain.Presence {
	out := make([]*domain.Presence, 0, len(records))
	for _, r := range records {
		if !r.Stale(now, ttl) {
			out = append(out, r)
		}
	}
	return out
}

func sortByConnection(records []*domain.Presence) {
	sort.Slice(records, func(i, j int) bool { return records[i].ConnectedAt.Before(records[j].ConnectedAt) })
}

// Without returns records not belonging to userID.
func Without(records []*domain.Presence, userID string) []*domain.Presence {
	out := make([]*domain.Presence, 0, len(records))
	for _, r := range records {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	return out
}

// RunSweeper calls Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, t Tracker, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := t.Sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("presence sweep failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int("removed", n).Msg("stale presence removed")
			}
		}
	}
}
