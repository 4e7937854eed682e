package domain

import (
	"strings"
	"time"
)

const DefaultProjectDescription = "No description"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanEdit reports whether the role may change project content.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

type Collaborator struct {
	Email   string    `json:"email"`
	Role    Role      `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Project access is kept twice: Access is the flat email list used for
// membership queries, Collaborators carries the roles. The owner's email is
// always in Access, and so is every collaborator's.
type Project struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	OwnerEmail    string         `json:"owner_email"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Status        string         `json:"status"`
	RepoURL       string         `json:"repo_url,omitempty"`
	Trashed       bool           `json:"trashed"`
	Access        []string       `json:"access"`
	Collaborators []Collaborator `json:"collaborators"`
	Attachments   []Attachment   `json:"attachments"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RoleOf resolves the role of the user identified by userID and email.
// Members without a detailed entry are viewers; strangers get "".
func (p *Project) RoleOf(userID, email string) Role {
	if p.OwnerID == userID {
		return RoleOwner
	}
	email = NormalizeEmail(email)
	for _, c := range p.Collaborators {
		if NormalizeEmail(c.Email) == email {
			return c.Role
		}
	}
	for _, a := range p.Access {
		if NormalizeEmail(a) == email {
			return RoleViewer
		}
	}
	return ""
}

// Normalize restores the access invariants.
func (p *Project) Normalize() {
	seen := make(map[string]bool)
	var access []string
	add := func(email string) {
		email = NormalizeEmail(email)
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		access = append(access, email)
	}

	add(p.OwnerEmail)
	for _, a := range p.Access {
		add(a)
	}
	for i := range p.Collaborators {
		p.Collaborators[i].Email = NormalizeEmail(p.Collaborators[i].Email)
		add(p.Collaborators[i].Email)
	}
	p.Access = access
}

type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Status      string `json:"status" validate:"max=30"`
	RepoURL     string `json:"repo_url" validate:"omitempty,url"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Status      *string `json:"status" validate:"omitempty,max=30"`
	RepoURL     *string `json:"repo_url" validate:"omitempty,url"`
}

type AddCollaboratorRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  Role   `json:"role" validate:"required,oneof=editor viewer"`
}

type UpdateCollaboratorRequest struct {
	Role Role `json:"role" validate:"required,oneof=editor viewer"`
}

type AddAttachmentRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	URL  string `json:"url" validate:"required,url"`
	Type string `json:"type" validate:"max=100"`
}

type ProjectStats struct {
	Todo  int `json:"todo"`
	Doing int `json:"doing"`
	Done  int `json:"done"`
	Total int `json:"total"`
	Notes int `json:"notes"`
}
