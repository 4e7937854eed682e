package service

import (
	"context"
	"fmt"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
	"notemv-server/internal/store"

	"github.com/rs/zerolog"
)

const defaultProjectStatus = "active"

type ProjectService struct {
	projects repository.ProjectRepository
	tasks    repository.TaskRepository
	notes    repository.NoteRepository
	versions repository.VersionRepository
	folders  repository.FolderRepository
	messages repository.MessageRepository
	access   *Access
	logger   zerolog.Logger
}

func NewProjectService(
	projects repository.ProjectRepository,
	tasks repository.TaskRepository,
	notes repository.NoteRepository,
	versions repository.VersionRepository,
	folders repository.FolderRepository,
	messages repository.MessageRepository,
	access *Access,
	logger zerolog.Logger,
) *ProjectService {
	return &ProjectService{
		projects: projects,
		tasks:    tasks,
		notes:    notes,
		versions: versions,
		folders:  folders,
		messages: messages,
		access:   access,
		logger:   logger.With().Str("component", "projects").Logger(),
	}
}

func (s *ProjectService) Create(ctx context.Context, who domain.Identity, req *domain.CreateProjectRequest) (*domain.Project, error) {
	project := &domain.Project{
		OwnerID:     who.ID,
		OwnerEmail:  domain.NormalizeEmail(who.Email),
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		RepoURL:     req.RepoURL,
	}
	if project.Description == "" {
		project.Description = domain.DefaultProjectDescription
	}
	if project.Status == "" {
		project.Status = defaultProjectStatus
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// List returns the projects the caller owns or was invited to.
func (s *ProjectService) List(ctx context.Context, who domain.Identity, trashed bool) ([]*domain.Project, error) {
	owned, err := s.projects.ListOwned(ctx, who.ID)
	if err != nil {
		return nil, err
	}
	shared, err := s.projects.ListShared(ctx, who.Email)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	projects := make([]*domain.Project, 0, len(owned)+len(shared))
	for _, p := range append(owned, shared...) {
		if seen[p.ID] || p.Trashed != trashed {
			continue
		}
		if trashed && p.OwnerID != who.ID {
			continue
		}
		seen[p.ID] = true
		projects = append(projects, p)
	}
	return projects, nil
}

func (s *ProjectService) Get(ctx context.Context, who domain.Identity, projectID string) (*domain.Project, domain.Role, error) {
	return s.access.Project(ctx, who, projectID)
}

func (s *ProjectService) Update(ctx context.Context, who domain.Identity, projectID string, req *domain.UpdateProjectRequest) (*domain.Project, error) {
	project, err := s.access.ProjectEditor(ctx, who, projectID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		project.Status = *req.Status
	}
	if req.RepoURL != nil {
		project.RepoURL = *req.RepoURL
	}

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) Trash(ctx context.Context, who domain.Identity, projectID string) error {
	return s.setTrashed(ctx, who, projectID, true)
}

func (s *ProjectService) Restore(ctx context.Context, who domain.Identity, projectID string) error {
	return s.setTrashed(ctx, who, projectID, false)
}

// Purge deletes a trashed project for good together with its notes, their
// versions, folders, tasks and chat. The project document goes last so a
// failed purge can be retried.
func (s *ProjectService) Purge(ctx context.Context, who domain.Identity, projectID string) error {
	project, err := s.access.ProjectOwner(ctx, who, projectID)
	if err != nil {
		return err
	}
	if !project.Trashed {
		return ErrNotTrashed
	}

	purged := 0
	for _, trashed := range []bool{false, true} {
		notes, err := s.notes.ListByProject(ctx, projectID, trashed)
		if err != nil {
			return err
		}
		for _, n := range notes {
			if err := s.versions.DeleteByNote(ctx, n.ID); err != nil {
				return fmt.Errorf("failed to delete versions: %w", err)
			}
			if err := s.notes.Delete(ctx, n.ID); err != nil && !repository.IsNotFound(err) {
				return err
			}
			purged++
		}
	}

	folders, err := s.folders.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, f := range folders {
		if err := s.folders.Delete(ctx, f.ID); err != nil && !repository.IsNotFound(err) {
			return err
		}
	}

	tasks, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.tasks.Delete(ctx, t.ID); err != nil && !repository.IsNotFound(err) {
			return err
		}
	}

	if err := s.messages.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, projectID); err != nil {
		return err
	}

	s.logger.Info().
		Str("project_id", projectID).
		Str("user_id", who.ID).
		Int("notes", purged).
		Msg("project purged")
	return nil
}

func (s *ProjectService) setTrashed(ctx context.Context, who domain.Identity, projectID string, trashed bool) error {
	project, err := s.access.ProjectOwner(ctx, who, projectID)
	if err != nil {
		return err
	}
	project.Trashed = trashed
	return s.projects.Update(ctx, project)
}

// AddCollaborator invites email with the given role. The owner cannot be
// invited to their own project and an email can only be listed once.
func (s *ProjectService) AddCollaborator(ctx context.Context, who domain.Identity, projectID string, req *domain.AddCollaboratorRequest) (*domain.Project, error) {
	project, err := s.access.ProjectOwner(ctx, who, projectID)
	if err != nil {
		return nil, err
	}

	email := domain.NormalizeEmail(req.Email)
	if email == project.OwnerEmail {
		return nil, fmt.Errorf("%w: owner is already a member", ErrInvalidCollaborator)
	}
	if collaboratorIndex(project, email) >= 0 {
		return nil, fmt.Errorf("%w: %s is already a collaborator", ErrInvalidCollaborator, email)
	}

	project.Collaborators = append(project.Collaborators, domain.Collaborator{
		Email:   email,
		Role:    req.Role,
		AddedAt: time.Now().UTC(),
	})
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info().Str("project_id", projectID).Str("email", email).Str("role", string(req.Role)).Msg("collaborator added")
	return project, nil
}

func (s *ProjectService) UpdateCollaborator(ctx context.Context, who domain.Identity, projectID, email string, req *domain.UpdateCollaboratorRequest) (*domain.Project, error) {
	project, err := s.access.ProjectOwner(ctx, who, projectID)
	if err != nil {
		return nil, err
	}

	i := collaboratorIndex(project, domain.NormalizeEmail(email))
	if i < 0 {
		return nil, fmt.Errorf("collaborator: %w", ErrNotFound)
	}
	project.Collaborators[i].Role = req.Role

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// RemoveCollaborator drops email from both the role list and the access list.
func (s *ProjectService) RemoveCollaborator(ctx context.Context, who domain.Identity, projectID, email string) (*domain.Project, error) {
	project, err := s.access.ProjectOwner(ctx, who, projectID)
	if err != nil {
		return nil, err
	}

	email = domain.NormalizeEmail(email)
	if email == project.OwnerEmail {
		return nil, fmt.Errorf("%w: the owner cannot be removed", ErrInvalidCollaborator)
	}

	i := collaboratorIndex(project, email)
	inAccess := false
	access := project.Access[:0]
	for _, a := range project.Access {
		if domain.NormalizeEmail(a) == email {
			inAccess = true
			continue
		}
		access = append(access, a)
	}
	if i < 0 && !inAccess {
		return nil, fmt.Errorf("collaborator: %w", ErrNotFound)
	}

	project.Access = access
	if i >= 0 {
		project.Collaborators = append(project.Collaborators[:i], project.Collaborators[i+1:]...)
	}
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info().Str("project_id", projectID).Str("email", email).Msg("collaborator removed")
	return project, nil
}

func collaboratorIndex(p *domain.Project, email string) int {
	for i, c := range p.Collaborators {
		if domain.NormalizeEmail(c.Email) == email {
			return i
		}
	}
	return -1
}

func (s *ProjectService) AddAttachment(ctx context.Context, who domain.Identity, projectID string, req *domain.AddAttachmentRequest) (*domain.Project, error) {
	project, err := s.access.ProjectEditor(ctx, who, projectID)
	if err != nil {
		return nil, err
	}

	project.Attachments = append(project.Attachments, domain.Attachment{Name: req.Name, URL: req.URL, Type: req.Type})
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Stats counts the project's tasks per column and its live notes.
func (s *ProjectService) Stats(ctx context.Context, who domain.Identity, projectID string) (*domain.ProjectStats, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}

	tasks, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	notes, err := s.notes.ListByProject(ctx, projectID, false)
	if err != nil {
		return nil, err
	}

	stats := &domain.ProjectStats{Total: len(tasks), Notes: len(notes)}
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskTodo:
			stats.Todo++
		case domain.TaskDoing:
			stats.Doing++
		case domain.TaskDone:
			stats.Done++
		}
	}
	return stats, nil
}

// Watch follows one project. fn receives nil when the project is deleted or
// trashed, or the caller loses access to it.
func (s *ProjectService) Watch(ctx context.Context, who domain.Identity, projectID string, fn func(*domain.Project)) (store.Subscription, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}
	return s.projects.Watch(ctx, projectID, func(p *domain.Project) {
		if p != nil && (p.Trashed || p.RoleOf(who.ID, who.Email) == "") {
			p = nil
		}
		fn(p)
	})
}
