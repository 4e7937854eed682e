package presence

import (
	"context"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
	"notemv-server/internal/store"
)

// StoreTracker keeps presence records in the document store, one document
// per (note, user).
type StoreTracker struct {
	repo repository.PresenceRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewStoreTracker(repo repository.PresenceRepository, ttl time.Duration) *StoreTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StoreTracker{repo: repo, ttl: ttl, now: time.Now}
}

func (t *StoreTracker) Register(ctx context.Context, noteID string, who domain.Identity, sessionID string) error {
	return t.repo.Upsert(ctx, newRecord(noteID, who, sessionID, t.now()))
}

func (t *StoreTracker) Heartbeat(ctx context.Context, noteID string, who domain.Identity, sessionID string) error {
	err := t.repo.Touch(ctx, noteID, who.ID)
	if repository.IsNotFound(err) {
		return t.Register(ctx, noteID, who, sessionID)
	}
	return err
}

func (t *StoreTracker) Unregister(ctx context.Context, noteID, userID string) error {
	err := t.repo.Delete(ctx, noteID, userID)
	if repository.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *StoreTracker) List(ctx context.Context, noteID string) ([]*domain.Presence, error) {
	records, err := t.repo.ListByNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	return live(records, t.now(), t.ttl), nil
}

func (t *StoreTracker) Watch(ctx context.Context, noteID string, fn func([]*domain.Presence)) (store.Subscription, error) {
	return t.repo.Watch(ctx, noteID, func(records []*domain.Presence) {
		fn(live(records, t.now(), t.ttl))
	})
}

func (t *StoreTracker) Sweep(ctx context.Context) (int, error) {
	records, err := t.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	now := t.now()
	for _, r := range records {
		if !r.Stale(now, t.ttl) {
			continue
		}
		if err := t.repo.Delete(ctx, r.NoteID, r.UserID); err != nil && !repository.IsNotFound(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
