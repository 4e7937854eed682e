package repository

import (
	"context"
	"fmt"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	ListPersonal(ctx context.Context, ownerID string, trashed bool) ([]*domain.Note, error)
	ListByProject(ctx context.Context, projectID string, trashed bool) ([]*domain.Note, error)
	// SaveContent returns the store's timestamp for the write.
	SaveContent(ctx context.Context, id string, content domain.NoteContent, writeID, editorID string) (time.Time, error)
	Move(ctx context.Context, id string, projectID, folderID *string) error
	SetTrashed(ctx context.Context, id string, trashed bool) error
	Delete(ctx context.Context, id string) error
	// Watch calls fn with the current note and on every change. fn receives
	// nil once the note is deleted.
	Watch(ctx context.Context, id string, fn func(*domain.Note)) (store.Subscription, error)
}

type noteRepository struct {
	store store.Store
}

func NewNoteRepository(s store.Store) NoteRepository {
	return &noteRepository{store: s}
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) error {
	if note.Tag == "" {
		note.Tag = domain.DefaultTag
	}

	doc, err := encodeNew(note)
	if err != nil {
		return err
	}

	id, err := r.store.Create(ctx, store.Notes, doc)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	created, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	*note = *created
	return nil
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	doc, err := r.store.Get(ctx, store.Notes, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	var note domain.Note
	if err := store.Decode(doc, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *noteRepository) ListPersonal(ctx context.Context, ownerID string, trashed bool) ([]*domain.Note, error) {
	docs, err := r.store.Query(ctx, store.Notes,
		store.Eq("owner_id", ownerID),
		store.Eq("project_id", nil),
		store.Eq("trashed", trashed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return r.sorted(docs)
}

func (r *noteRepository) ListByProject(ctx context.Context, projectID string, trashed bool) ([]*domain.Note, error) {
	docs, err := r.store.Query(ctx, store.Notes,
		store.Eq("project_id", projectID),
		store.Eq("trashed", trashed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes by project: %w", err)
	}
	return r.sorted(docs)
}

func (r *noteRepository) sorted(docs []store.Document) ([]*domain.Note, error) {
	notes, err := decodeAll[domain.Note](docs)
	if err != nil {
		return nil, err
	}
	sortBy(notes, func(a, b *domain.Note) bool { return a.UpdatedAt.After(b.UpdatedAt) })
	return notes, nil
}

// SaveContent overwrites every session-owned field at once.
func (r *noteRepository) SaveContent(ctx context.Context, id string, content domain.NoteContent, writeID, editorID string) (time.Time, error) {
	written, err := r.store.Update(ctx, store.Notes, id, store.Document{
		"title":          content.Title,
		"content":        content.Content,
		"tag":            content.Tag,
		"cover":          content.Cover,
		"last_write_id":  writeID,
		"last_editor_id": editorID,
		"updated_at":     store.ServerTimestamp,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to save note: %w", err)
	}

	var stamp struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := store.Decode(written, &stamp); err != nil {
		return time.Time{}, err
	}
	return stamp.UpdatedAt, nil
}

func (r *noteRepository) Move(ctx context.Context, id string, projectID, folderID *string) error {
	fields := store.Document{
		"project_id": optional(projectID),
		"folder_id":  optional(folderID),
		"updated_at": store.ServerTimestamp,
	}

	if _, err := r.store.Update(ctx, store.Notes, id, fields); err != nil {
		return fmt.Errorf("failed to move note: %w", err)
	}
	return nil
}

func (r *noteRepository) SetTrashed(ctx context.Context, id string, trashed bool) error {
	_, err := r.store.Update(ctx, store.Notes, id, store.Document{
		"trashed":    trashed,
		"updated_at": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to trash note: %w", err)
	}
	return nil
}

func (r *noteRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, store.Notes, id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func (r *noteRepository) Watch(ctx context.Context, id string, fn func(*domain.Note)) (store.Subscription, error) {
	sub, err := r.store.SubscribeDoc(ctx, store.Notes, id, func(c store.Change) {
		if c.Deleted {
			fn(nil)
			return
		}
		var note domain.Note
		if err := store.Decode(c.Doc, &note); err != nil {
			return
		}
		fn(&note)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch note: %w", err)
	}
	return sub, nil
}
