package service

import (
	"context"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
	"notemv-server/internal/store"
)

// ChatService handles project chat. Every member can read and post,
// viewers included.
type ChatService struct {
	messages repository.MessageRepository
	access   *Access
}

func NewChatService(messages repository.MessageRepository, access *Access) *ChatService {
	return &ChatService{messages: messages, access: access}
}

func (s *ChatService) Send(ctx context.Context, who domain.Identity, projectID string, req *domain.SendMessageRequest) (*domain.ChatMessage, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{
		ProjectID: projectID,
		UserID:    who.ID,
		UserName:  who.DisplayName,
		Text:      req.Text,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ChatService) List(ctx context.Context, who domain.Identity, projectID string) ([]*domain.ChatMessage, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}
	return s.messages.ListByProject(ctx, projectID)
}

func (s *ChatService) Watch(ctx context.Context, who domain.Identity, projectID string, fn func([]*domain.ChatMessage)) (store.Subscription, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}
	return s.messages.Watch(ctx, projectID, fn)
}
