package repository

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	EmailExists(ctx context.Context, email string) (bool, error)
}

type userRepository struct {
	store store.Store
}

func NewUserRepository(s store.Store) UserRepository {
	return &userRepository{store: s}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = domain.NormalizeEmail(user.Email)
	doc, err := encodeNew(user)
	if err != nil {
		return err
	}

	if err := r.store.Put(ctx, store.Users, user.ID, doc); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	docs, err := r.store.Query(ctx, store.Users, store.Eq("email", domain.NormalizeEmail(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}

	var user domain.User
	if err := store.Decode(docs[0], &user); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.store.Get(ctx, store.Users, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	var user domain.User
	if err := store.Decode(doc, &user); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	_, err := r.store.Update(ctx, store.Users, user.ID, store.Document{
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"updated_at":   store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	docs, err := r.store.Query(ctx, store.Users, store.Eq("email", domain.NormalizeEmail(email)))
	if err != nil {
		return false, fmt.Errorf("failed to query user by email: %w", err)
	}
	return len(docs) > 0, nil
}
