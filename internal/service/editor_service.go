package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/presence"
	"notemv-server/internal/repository"
	"notemv-server/internal/session"
	"notemv-server/internal/store"

	"github.com/rs/zerolog"
)

type EditorOptions struct {
	Debounce         time.Duration
	SnapshotInterval time.Duration
	Heartbeat        time.Duration
}

// EditorService opens editing sessions after checking the caller's role.
// Viewers get read-only sessions: they follow remote changes but never
// write, snapshot or show up in presence.
type EditorService struct {
	access   *Access
	notes    repository.NoteRepository
	versions *VersionService
	presence presence.Tracker
	opts     EditorOptions
	logger   zerolog.Logger
}

func NewEditorService(
	access *Access,
	notes repository.NoteRepository,
	versions *VersionService,
	tracker presence.Tracker,
	opts EditorOptions,
	logger zerolog.Logger,
) *EditorService {
	return &EditorService{
		access:   access,
		notes:    notes,
		versions: versions,
		presence: tracker,
		opts:     opts,
		logger:   logger,
	}
}

func (s *EditorService) Open(ctx context.Context, who domain.Identity, noteID string, onEvent func(session.Event)) (*session.Session, error) {
	_, role, err := s.access.Note(ctx, who, noteID)
	if err != nil {
		return nil, err
	}

	sess, err := session.Open(ctx, session.Deps{
		Notes:    s.notes,
		Versions: s.versions,
		Presence: s.presence,
	}, noteID, who, session.Options{
		Debounce:         s.opts.Debounce,
		SnapshotInterval: s.opts.SnapshotInterval,
		Heartbeat:        s.opts.Heartbeat,
		ReadOnly:         !role.CanEdit(),
		OnEvent:          onEvent,
		Logger:           s.logger,
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("note: %w", ErrNotFound)
	}
	return sess, err
}

// Restore applies a stored version through a live session so the session's
// own state and echo tracking stay consistent.
func (s *EditorService) Restore(ctx context.Context, sess *session.Session, versionID string, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	if sess.ReadOnly() {
		return session.ErrReadOnly
	}

	version, err := s.versions.find(ctx, sess.NoteID(), versionID)
	if err != nil {
		return err
	}
	return sess.Restore(ctx, version)
}

// WatchPresence reports who else has the note open. The caller's own record
// is filtered out.
func (s *EditorService) WatchPresence(ctx context.Context, who domain.Identity, noteID string, fn func([]*domain.Presence)) (store.Subscription, error) {
	if _, _, err := s.access.Note(ctx, who, noteID); err != nil {
		return nil, err
	}
	return s.presence.Watch(ctx, noteID, func(records []*domain.Presence) {
		fn(presence.Without(records, who.ID))
	})
}
