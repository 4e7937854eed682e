package repository

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error
}

type taskRepository struct {
	store store.Store
}

func NewTaskRepository(s store.Store) TaskRepository {
	return &taskRepository{store: s}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	doc, err := encodeNew(task)
	if err != nil {
		return err
	}

	id, err := r.store.Create(ctx, store.Tasks, doc)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	created, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	*task = *created
	return nil
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	doc, err := r.store.Get(ctx, store.Tasks, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	var t domain.Task
	if err := store.Decode(doc, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.Task, error) {
	docs, err := r.store.Query(ctx, store.Tasks, store.Eq("project_id", projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks, err := decodeAll[domain.Task](docs)
	if err != nil {
		return nil, err
	}
	sortBy(tasks, func(a, b *domain.Task) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return tasks, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	doc, err := store.Encode(task)
	if err != nil {
		return err
	}
	delete(doc, store.FieldID)
	delete(doc, "created_at")
	doc["updated_at"] = store.ServerTimestamp

	if _, err := r.store.Update(ctx, store.Tasks, task.ID, doc); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, store.Tasks, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}
