package service

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type NoteService struct {
	notes    repository.NoteRepository
	versions repository.VersionRepository
	access   *Access
	logger   zerolog.Logger
}

func NewNoteService(
	notes repository.NoteRepository,
	versions repository.VersionRepository,
	access *Access,
	logger zerolog.Logger,
) *NoteService {
	return &NoteService{
		notes:    notes,
		versions: versions,
		access:   access,
		logger:   logger.With().Str("component", "notes").Logger(),
	}
}

// Create adds an empty note, or a copy of req.CloneFrom when set. Project
// notes need the editor role on the project.
func (s *NoteService) Create(ctx context.Context, who domain.Identity, req *domain.CreateNoteRequest) (*domain.Note, error) {
	note := &domain.Note{
		OwnerID:   who.ID,
		ProjectID: nonEmpty(req.ProjectID),
		FolderID:  nonEmpty(req.FolderID),
		Title:     req.Title,
		Content:   req.Content,
		Tag:       req.Tag,
		Cover:     req.Cover,
	}

	if req.CloneFrom != "" {
		source, _, err := s.access.Note(ctx, who, req.CloneFrom)
		if err != nil {
			return nil, err
		}
		note.Title = source.Title
		note.Content = source.Content
		note.Tag = source.Tag
		note.Cover = source.Cover
		if req.ProjectID == nil {
			note.ProjectID = source.ProjectID
			note.FolderID = source.FolderID
		}
	}

	if note.ProjectID != nil {
		if _, err := s.access.ProjectEditor(ctx, who, *note.ProjectID); err != nil {
			return nil, err
		}
	}

	if err := s.notes.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// List returns the caller's personal notes, either live or trashed.
func (s *NoteService) List(ctx context.Context, who domain.Identity, trashed bool) ([]*domain.Note, error) {
	return s.notes.ListPersonal(ctx, who.ID, trashed)
}

func (s *NoteService) ListByProject(ctx context.Context, who domain.Identity, projectID string, trashed bool) ([]*domain.Note, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}
	return s.notes.ListByProject(ctx, projectID, trashed)
}

func (s *NoteService) Get(ctx context.Context, who domain.Identity, noteID string) (*domain.Note, domain.Role, error) {
	return s.access.Note(ctx, who, noteID)
}

// Save overwrites all content fields at once.
func (s *NoteService) Save(ctx context.Context, who domain.Identity, noteID string, req *domain.SaveNoteRequest) (*domain.Note, error) {
	if _, err := s.access.NoteEditor(ctx, who, noteID); err != nil {
		return nil, err
	}

	content := domain.NoteContent{Title: req.Title, Content: req.Content, Tag: req.Tag, Cover: req.Cover}
	if content.Tag == "" {
		content.Tag = domain.DefaultTag
	}
	if _, err := s.notes.SaveContent(ctx, noteID, content, "api/"+uuid.NewString(), who.ID); err != nil {
		return nil, err
	}
	return s.notes.FindByID(ctx, noteID)
}

// Move changes the note's project and folder. Both the source and the
// destination must be editable by the caller.
func (s *NoteService) Move(ctx context.Context, who domain.Identity, noteID string, req *domain.MoveNoteRequest) (*domain.Note, error) {
	note, err := s.access.NoteEditor(ctx, who, noteID)
	if err != nil {
		return nil, err
	}

	projectID := nonEmpty(req.ProjectID)
	if projectID != nil {
		if _, err := s.access.ProjectEditor(ctx, who, *projectID); err != nil {
			return nil, err
		}
	} else if note.OwnerID != who.ID {
		// Only the author can take a note out of a project.
		return nil, ErrOwnerRequired
	}

	if err := s.notes.Move(ctx, noteID, projectID, nonEmpty(req.FolderID)); err != nil {
		return nil, err
	}
	return s.notes.FindByID(ctx, noteID)
}

func (s *NoteService) Trash(ctx context.Context, who domain.Identity, noteID string) error {
	if _, err := s.access.NoteEditor(ctx, who, noteID); err != nil {
		return err
	}
	return s.notes.SetTrashed(ctx, noteID, true)
}

func (s *NoteService) Restore(ctx context.Context, who domain.Identity, noteID string) error {
	if _, err := s.access.NoteEditor(ctx, who, noteID); err != nil {
		return err
	}
	return s.notes.SetTrashed(ctx, noteID, false)
}

// Purge deletes a trashed note and its version history for good. Only the
// note's author or the project owner may do it.
func (s *NoteService) Purge(ctx context.Context, who domain.Identity, noteID string) error {
	note, role, err := s.access.Note(ctx, who, noteID)
	if err != nil {
		return err
	}
	if note.OwnerID != who.ID && role != domain.RoleOwner {
		return ErrOwnerRequired
	}
	if !note.Trashed {
		return ErrNotTrashed
	}

	if err := s.versions.DeleteByNote(ctx, noteID); err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	if err := s.notes.Delete(ctx, noteID); err != nil {
		return err
	}

	s.logger.Info().Str("note_id", noteID).Str("user_id", who.ID).Msg("note purged")
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
