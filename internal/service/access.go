package service

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
)

// Access resolves what a user may do with notes and projects. Personal notes
// belong to their owner alone; project notes follow the project's roles.
type Access struct {
	notes    repository.NoteRepository
	projects repository.ProjectRepository
}

func NewAccess(notes repository.NoteRepository, projects repository.ProjectRepository) *Access {
	return &Access{notes: notes, projects: projects}
}

// Project resolves the caller's role on a project.
func (a *Access) Project(ctx context.Context, who domain.Identity, projectID string) (*domain.Project, domain.Role, error) {
	project, err := a.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, "", notFound("project", err)
	}

	role := project.RoleOf(who.ID, who.Email)
	if role == "" {
		return nil, "", ErrAccessDenied
	}
	// A trashed project is gone for everyone but its owner, who may still
	// restore or purge it.
	if project.Trashed && role != domain.RoleOwner {
		return nil, "", fmt.Errorf("project: %w", ErrNotFound)
	}
	return project, role, nil
}

// ProjectEditor is Project restricted to owners and editors.
func (a *Access) ProjectEditor(ctx context.Context, who domain.Identity, projectID string) (*domain.Project, error) {
	project, role, err := a.Project(ctx, who, projectID)
	if err != nil {
		return nil, err
	}
	if !role.CanEdit() {
		return nil, ErrAccessDenied
	}
	return project, nil
}

func (a *Access) ProjectOwner(ctx context.Context, who domain.Identity, projectID string) (*domain.Project, error) {
	project, role, err := a.Project(ctx, who, projectID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleOwner {
		return nil, ErrOwnerRequired
	}
	return project, nil
}

func (a *Access) Note(ctx context.Context, who domain.Identity, noteID string) (*domain.Note, domain.Role, error) {
	note, err := a.notes.FindByID(ctx, noteID)
	if err != nil {
		return nil, "", notFound("note", err)
	}

	if note.IsPersonal() {
		if note.OwnerID != who.ID {
			return nil, "", ErrAccessDenied
		}
		return note, domain.RoleOwner, nil
	}

	_, role, err := a.Project(ctx, who, *note.ProjectID)
	if err != nil {
		return nil, "", err
	}
	return note, role, nil
}

func (a *Access) NoteEditor(ctx context.Context, who domain.Identity, noteID string) (*domain.Note, error) {
	note, role, err := a.Note(ctx, who, noteID)
	if err != nil {
		return nil, err
	}
	if !role.CanEdit() {
		return nil, ErrAccessDenied
	}
	return note, nil
}
