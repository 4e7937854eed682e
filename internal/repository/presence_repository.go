package repository

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

type PresenceRepository interface {
	// Upsert replaces the (note, user) record.
	Upsert(ctx context.Context, p *domain.Presence) error
	Touch(ctx context.Context, noteID, userID string) error
	Delete(ctx context.Context, noteID, userID string) error
	ListByNote(ctx context.Context, noteID string) ([]*domain.Presence, error)
	ListAll(ctx context.Context) ([]*domain.Presence, error)
	Watch(ctx context.Context, noteID string, fn func([]*domain.Presence)) (store.Subscription, error)
}

type presenceRepository struct {
	store store.Store
}

func NewPresenceRepository(s store.Store) PresenceRepository {
	return &presenceRepository{store: s}
}

func presenceID(noteID, userID string) string {
	return noteID + ":" + userID
}

func (r *presenceRepository) Upsert(ctx context.Context, p *domain.Presence) error {
	doc, err := store.Encode(p)
	if err != nil {
		return err
	}
	doc["connected_at"] = store.ServerTimestamp
	doc["heartbeat_at"] = store.ServerTimestamp

	if err := r.store.Put(ctx, store.Presence, presenceID(p.NoteID, p.UserID), doc); err != nil {
		return fmt.Errorf("failed to register presence: %w", err)
	}
	return nil
}

func (r *presenceRepository) Touch(ctx context.Context, noteID, userID string) error {
	_, err := r.store.Update(ctx, store.Presence, presenceID(noteID, userID), store.Document{
		"heartbeat_at": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

func (r *presenceRepository) Delete(ctx context.Context, noteID, userID string) error {
	if err := r.store.Delete(ctx, store.Presence, presenceID(noteID, userID)); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

func (r *presenceRepository) ListByNote(ctx context.Context, noteID string) ([]*domain.Presence, error) {
	docs, err := r.store.Query(ctx, store.Presence, store.Eq("note_id", noteID))
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	return byConnection(docs)
}

func (r *presenceRepository) ListAll(ctx context.Context) ([]*domain.Presence, error) {
	docs, err := r.store.Query(ctx, store.Presence)
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	return byConnection(docs)
}

func (r *presenceRepository) Watch(ctx context.Context, noteID string, fn func([]*domain.Presence)) (store.Subscription, error) {
	sub, err := r.store.SubscribeQuery(ctx, store.Presence, []store.Filter{store.Eq("note_id", noteID)}, func(docs []store.Document) {
		records, err := byConnection(docs)
		if err != nil {
			return
		}
		fn(records)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch presence: %w", err)
	}
	return sub, nil
}

func byConnection(docs []store.Document) ([]*domain.Presence, error) {
	records, err := decodeAll[domain.Presence](docs)
	if err != nil {
		return nil, err
	}
	sortBy(records, func(a, b *domain.Presence) bool { return a.ConnectedAt.Before(b.ConnectedAt) })
	return records, nil
}
