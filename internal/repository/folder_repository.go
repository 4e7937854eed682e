package repository

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

type FolderRepository interface {
	Create(ctx context.Context, folder *domain.Folder) error
	FindByID(ctx context.Context, id string) (*domain.Folder, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Folder, error)
	Update(ctx context.Context, folder *domain.Folder) error
	Delete(ctx context.Context, id string) error
}

type folderRepository struct {
	store store.Store
}

func NewFolderRepository(s store.Store) FolderRepository {
	return &folderRepository{store: s}
}

func (r *folderRepository) Create(ctx context.Context, folder *domain.Folder) error {
	doc, err := encodeNew(folder)
	if err != nil {
		return err
	}

	id, err := r.store.Create(ctx, store.Folders, doc)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	created, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	*folder = *created
	return nil
}

func (r *folderRepository) FindByID(ctx context.Context, id string) (*domain.Folder, error) {
	doc, err := r.store.Get(ctx, store.Folders, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find folder: %w", err)
	}

	var f domain.Folder
	if err := store.Decode(doc, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *folderRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.Folder, error) {
	docs, err := r.store.Query(ctx, store.Folders, store.Eq("project_id", projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	folders, err := decodeAll[domain.Folder](docs)
	if err != nil {
		return nil, err
	}
	sortBy(folders, func(a, b *domain.Folder) bool { return a.Name < b.Name })
	return folders, nil
}

func (r *folderRepository) Update(ctx context.Context, folder *domain.Folder) error {
	_, err := r.store.Update(ctx, store.Folders, folder.ID, store.Document{
		"name":       folder.Name,
		"parent_id":  optional(folder.ParentID),
		"trashed":    folder.Trashed,
		"updated_at": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to update folder: %w", err)
	}
	return nil
}

func (r *folderRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, store.Folders, id); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}
