package repository

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
	ListByProject(ctx context.Context, projectID string) ([]*domain.ChatMessage, error)
	Watch(ctx context.Context, projectID string, fn func([]*domain.ChatMessage)) (store.Subscription, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

type messageRepository struct {
	store store.Store
}

func NewMessageRepository(s store.Store) MessageRepository {
	return &messageRepository{store: s}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	doc, err := store.Encode(msg)
	if err != nil {
		return err
	}
	delete(doc, store.FieldID)
	doc["created_at"] = store.ServerTimestamp

	id, err := r.store.Create(ctx, store.Messages, doc)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	created, err := r.store.Get(ctx, store.Messages, id)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return store.Decode(created, msg)
}

// ListByProject returns the conversation oldest first.
func (r *messageRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.ChatMessage, error) {
	docs, err := r.store.Query(ctx, store.Messages, store.Eq("project_id", projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return oldestFirst(docs)
}

func (r *messageRepository) Watch(ctx context.Context, projectID string, fn func([]*domain.ChatMessage)) (store.Subscription, error) {
	sub, err := r.store.SubscribeQuery(ctx, store.Messages, []store.Filter{store.Eq("project_id", projectID)}, func(docs []store.Document) {
		msgs, err := oldestFirst(docs)
		if err != nil {
			return
		}
		fn(msgs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch messages: %w", err)
	}
	return sub, nil
}

func (r *messageRepository) DeleteByProject(ctx context.Context, projectID string) error {
	docs, err := r.store.Query(ctx, store.Messages, store.Eq("project_id", projectID))
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	for _, doc := range docs {
		if err := r.store.Delete(ctx, store.Messages, doc.ID()); err != nil && !IsNotFound(err) {
			return fmt.Errorf("failed to delete message: %w", err)
		}
	}
	return nil
}

func oldestFirst(docs []store.Document) ([]*domain.ChatMessage, error) {
	msgs, err := decodeAll[domain.ChatMessage](docs)
	if err != nil {
		return nil, err
	}
	sortBy(msgs, func(a, b *domain.ChatMessage) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return msgs, nil
}
