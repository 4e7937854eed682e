package domain

import "time"

type Folder struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	Trashed   bool      `json:"trashed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateFolderRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=100"`
	ParentID *string `json:"parent_id"`
}

type UpdateFolderRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	ParentID *string `json:"parent_id"`
	Trashed  *bool   `json:"trashed"`
}
