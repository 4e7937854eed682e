package service

import (
	"context"
	"fmt"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
	"notemv-server/internal/session"
	"notemv-server/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Retention bounds the version history of each note. Zero values leave it
// unbounded.
type Retention struct {
	KeepLast int
	MaxAge   time.Duration
}

// VersionService appends and restores note snapshots. It is also the
// session.Snapshotter used by editing sessions.
type VersionService struct {
	versions  repository.VersionRepository
	notes     repository.NoteRepository
	access    *Access
	retention Retention
	logger    zerolog.Logger
	now       func() time.Time
}

func NewVersionService(
	versions repository.VersionRepository,
	notes repository.NoteRepository,
	access *Access,
	retention Retention,
	logger zerolog.Logger,
) *VersionService {
	return &VersionService{
		versions:  versions,
		notes:     notes,
		access:    access,
		retention: retention,
		logger:    logger.With().Str("component", "versions").Logger(),
		now:       time.Now,
	}
}

// Snapshot stores content as a new version of noteID. The note must exist.
func (s *VersionService) Snapshot(ctx context.Context, noteID string, content domain.NoteContent, editor domain.Identity, label domain.VersionLabel, name string) (*domain.NoteVersion, error) {
	if _, err := s.notes.FindByID(ctx, noteID); err != nil {
		return nil, notFound("note", err)
	}

	version := &domain.NoteVersion{
		NoteID:     noteID,
		Title:      content.Title,
		Content:    content.Content,
		EditorID:   editor.ID,
		EditorName: editor.DisplayName,
		Label:      label,
		Name:       name,
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, err
	}

	if _, err := s.Prune(ctx, noteID); err != nil {
		s.logger.Warn().Err(err).Str("note_id", noteID).Msg("version pruning failed")
	}
	return version, nil
}

// Create takes a manual snapshot of the stored note.
func (s *VersionService) Create(ctx context.Context, who domain.Identity, noteID string, req *domain.CreateVersionRequest) (*domain.NoteVersion, error) {
	note, err := s.access.NoteEditor(ctx, who, noteID)
	if err != nil {
		return nil, err
	}
	if note.Title == "" {
		return nil, session.ErrTitleRequired
	}
	return s.Snapshot(ctx, noteID, note.ContentFields(), who, domain.LabelManual, req.Name)
}

// List returns the versions of a note, most recent first.
func (s *VersionService) List(ctx context.Context, who domain.Identity, noteID string) ([]*domain.NoteVersion, error) {
	if _, _, err := s.access.Note(ctx, who, noteID); err != nil {
		return nil, err
	}
	return s.versions.ListByNote(ctx, noteID)
}

func (s *VersionService) Get(ctx context.Context, who domain.Identity, noteID, versionID string) (*domain.NoteVersion, error) {
	if _, _, err := s.access.Note(ctx, who, noteID); err != nil {
		return nil, err
	}
	return s.find(ctx, noteID, versionID)
}

func (s *VersionService) find(ctx context.Context, noteID, versionID string) (*domain.NoteVersion, error) {
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		return nil, notFound("version", err)
	}
	if version.NoteID != noteID {
		return nil, fmt.Errorf("version: %w", ErrNotFound)
	}
	return version, nil
}

// Watch delivers the version list on subscription and whenever a snapshot is
// added by anyone.
func (s *VersionService) Watch(ctx context.Context, who domain.Identity, noteID string, fn func([]*domain.NoteVersion)) (store.Subscription, error) {
	if _, _, err := s.access.Note(ctx, who, noteID); err != nil {
		return nil, err
	}
	return s.versions.Watch(ctx, noteID, fn)
}

// Restore overwrites the note's title and content with a stored version. The
// state being replaced is not snapshotted. Open sessions pick the change up
// from the store like any other remote write.
func (s *VersionService) Restore(ctx context.Context, who domain.Identity, noteID, versionID string, confirm bool) (*domain.Note, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}

	note, err := s.access.NoteEditor(ctx, who, noteID)
	if err != nil {
		return nil, err
	}
	version, err := s.find(ctx, noteID, versionID)
	if err != nil {
		return nil, err
	}

	content := note.ContentFields()
	content.Title = version.Title
	content.Content = version.Content
	if _, err := s.notes.SaveContent(ctx, noteID, content, "restore/"+uuid.NewString(), who.ID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("note_id", noteID).
		Str("version_id", versionID).
		Str("user_id", who.ID).
		Msg("version restored")

	return s.notes.FindByID(ctx, noteID)
}

// Prune applies the retention policy to one note and returns how many
// versions were removed. The newest version is always kept.
func (s *VersionService) Prune(ctx context.Context, noteID string) (int, error) {
	if s.retention.KeepLast <= 0 && s.retention.MaxAge <= 0 {
		return 0, nil
	}

	versions, err := s.versions.ListByNote(ctx, noteID)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.retention.MaxAge)
	removed := 0
	for i, v := range versions {
		if i == 0 {
			continue
		}
		overCount := s.retention.KeepLast > 0 && i >= s.retention.KeepLast
		tooOld := s.retention.MaxAge > 0 && v.CreatedAt.Before(cutoff)
		if !overCount && !tooOld {
			continue
		}
		if err := s.versions.Delete(ctx, v.ID); err != nil && !repository.IsNotFound(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
