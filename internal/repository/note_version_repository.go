package repository

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

// VersionRepository stores snapshots. Versions are never updated; the only
// removals are retention pruning and purging the parent note.
type VersionRepository interface {
	Create(ctx context.Context, version *domain.NoteVersion) error
	FindByID(ctx context.Context, id string) (*domain.NoteVersion, error)
	ListByNote(ctx context.Context, noteID string) ([]*domain.NoteVersion, error)
	Delete(ctx context.Context, id string) error
	DeleteByNote(ctx context.Context, noteID string) error
	Watch(ctx context.Context, noteID string, fn func([]*domain.NoteVersion)) (store.Subscription, error)
}

type versionRepository struct {
	store store.Store
}

func NewVersionRepository(s store.Store) VersionRepository {
	return &versionRepository{store: s}
}

func (r *versionRepository) Create(ctx context.Context, version *domain.NoteVersion) error {
	doc, err := store.Encode(version)
	if err != nil {
		return err
	}
	delete(doc, store.FieldID)
	doc["created_at"] = store.ServerTimestamp

	id, err := r.store.Create(ctx, store.Versions, doc)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}

	created, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	*version = *created
	return nil
}

func (r *versionRepository) FindByID(ctx context.Context, id string) (*domain.NoteVersion, error) {
	doc, err := r.store.Get(ctx, store.Versions, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find version: %w", err)
	}

	var v domain.NoteVersion
	if err := store.Decode(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByNote returns the note's versions, most recent first.
func (r *versionRepository) ListByNote(ctx context.Context, noteID string) ([]*domain.NoteVersion, error) {
	docs, err := r.store.Query(ctx, store.Versions, store.Eq("note_id", noteID))
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return newestFirst(docs)
}

func (r *versionRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, store.Versions, id); err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	return nil
}

func (r *versionRepository) DeleteByNote(ctx context.Context, noteID string) error {
	docs, err := r.store.Query(ctx, store.Versions, store.Eq("note_id", noteID))
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	for _, doc := range docs {
		if err := r.store.Delete(ctx, store.Versions, doc.ID()); err != nil && !IsNotFound(err) {
			return fmt.Errorf("failed to delete version: %w", err)
		}
	}
	return nil
}

func (r *versionRepository) Watch(ctx context.Context, noteID string, fn func([]*domain.NoteVersion)) (store.Subscription, error) {
	sub, err := r.store.SubscribeQuery(ctx, store.Versions, []store.Filter{store.Eq("note_id", noteID)}, func(docs []store.Document) {
		versions, err := newestFirst(docs)
		if err != nil {
			return
		}
		fn(versions)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch versions: %w", err)
	}
	return sub, nil
}

func newestFirst(docs []store.Document) ([]*domain.NoteVersion, error) {
	versions, err := decodeAll[domain.NoteVersion](docs)
	if err != nil {
		return nil, err
	}
	sortBy(versions, func(a, b *domain.NoteVersion) bool { return a.CreatedAt.After(b.CreatedAt) })
	return versions, nil
}
