package service

import (
	"context"
	"fmt"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
)

type FolderService struct {
	folders repository.FolderRepository
	access  *Access
}

func NewFolderService(folders repository.FolderRepository, access *Access) *FolderService {
	return &FolderService{folders: folders, access: access}
}

func (s *FolderService) Create(ctx context.Context, who domain.Identity, projectID string, req *domain.CreateFolderRequest) (*domain.Folder, error) {
	if _, err := s.access.ProjectEditor(ctx, who, projectID); err != nil {
		return nil, err
	}

	parentID := nonEmpty(req.ParentID)
	if parentID != nil {
		if err := s.checkParent(ctx, projectID, *parentID); err != nil {
			return nil, err
		}
	}

	folder := &domain.Folder{ProjectID: projectID, Name: req.Name, ParentID: parentID}
	if err := s.folders.Create(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *FolderService) List(ctx context.Context, who domain.Identity, projectID string) ([]*domain.Folder, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}
	return s.folders.ListByProject(ctx, projectID)
}

func (s *FolderService) Update(ctx context.Context, who domain.Identity, folderID string, req *domain.UpdateFolderRequest) (*domain.Folder, error) {
	folder, err := s.editable(ctx, who, folderID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		folder.Name = *req.Name
	}
	if req.ParentID != nil {
		parentID := nonEmpty(req.ParentID)
		if parentID != nil {
			if *parentID == folder.ID {
				return nil, fmt.Errorf("%w: a folder cannot be its own parent", ErrInvalidFolder)
			}
			if err := s.checkParent(ctx, folder.ProjectID, *parentID); err != nil {
				return nil, err
			}
		}
		folder.ParentID = parentID
	}
	if req.Trashed != nil {
		folder.Trashed = *req.Trashed
	}

	if err := s.folders.Update(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *FolderService) Delete(ctx context.Context, who domain.Identity, folderID string) error {
	if _, err := s.editable(ctx, who, folderID); err != nil {
		return err
	}
	return s.folders.Delete(ctx, folderID)
}

func (s *FolderService) editable(ctx context.Context, who domain.Identity, folderID string) (*domain.Folder, error) {
	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		return nil, notFound("folder", err)
	}
	if _, err := s.access.ProjectEditor(ctx, who, folder.ProjectID); err != nil {
		return nil, err
	}
	return folder, nil
}

// checkParent makes sure a parent folder exists in the same project.
func (s *FolderService) checkParent(ctx context.Context, projectID, parentID string) error {
	parent, err := s.folders.FindByID(ctx, parentID)
	if err != nil {
		return notFound("parent folder", err)
	}
	if parent.ProjectID != projectID {
		return fmt.Errorf("parent folder: %w", ErrNotFound)
	}
	return nil
}
