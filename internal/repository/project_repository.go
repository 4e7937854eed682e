package repository

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	FindByID(ctx context.Context, id string) (*domain.Project, error)
	ListOwned(ctx context.Context, ownerID string) ([]*domain.Project, error)
	ListShared(ctx context.Context, email string) ([]*domain.Project, error)
	Update(ctx context.Context, project *domain.Project) error
	Delete(ctx context.Context, id string) error
	// Watch calls fn with nil once the project is deleted.
	Watch(ctx context.Context, id string, fn func(*domain.Project)) (store.Subscription, error)
}

type projectRepository struct {
	store store.Store
}

func NewProjectRepository(s store.Store) ProjectRepository {
	return &projectRepository{store: s}
}

func (r *projectRepository) Create(ctx context.Context, project *domain.Project) error {
	project.Normalize()
	doc, err := encodeNew(project)
	if err != nil {
		return err
	}

	id, err := r.store.Create(ctx, store.Projects, doc)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	created, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	*project = *created
	return nil
}

func (r *projectRepository) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	doc, err := r.store.Get(ctx, store.Projects, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}

	var p domain.Project
	if err := store.Decode(doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepository) ListOwned(ctx context.Context, ownerID string) ([]*domain.Project, error) {
	docs, err := r.store.Query(ctx, store.Projects, store.Eq("owner_id", ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return decodeAll[domain.Project](docs)
}

func (r *projectRepository) ListShared(ctx context.Context, email string) ([]*domain.Project, error) {
	docs, err := r.store.Query(ctx, store.Projects, store.ArrayContains("access", domain.NormalizeEmail(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to list shared projects: %w", err)
	}
	return decodeAll[domain.Project](docs)
}

// Update writes the whole project back, re-applying the access invariants.
func (r *projectRepository) Update(ctx context.Context, project *domain.Project) error {
	project.Normalize()
	doc, err := store.Encode(project)
	if err != nil {
		return err
	}
	delete(doc, store.FieldID)
	delete(doc, "created_at")
	doc["updated_at"] = store.ServerTimestamp

	if _, err := r.store.Update(ctx, store.Projects, project.ID, doc); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

func (r *projectRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, store.Projects, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func (r *projectRepository) Watch(ctx context.Context, id string, fn func(*domain.Project)) (store.Subscription, error) {
	sub, err := r.store.SubscribeDoc(ctx, store.Projects, id, func(c store.Change) {
		if c.Deleted {
			fn(nil)
			return
		}
		var p domain.Project
		if err := store.Decode(c.Doc, &p); err != nil {
			return
		}
		fn(&p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch project: %w", err)
	}
	return sub, nil
}
