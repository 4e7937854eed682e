package domain

import "time"

const DefaultTag = "General"

type NoteField string

const (
	FieldTitle   NoteField = "title"
	FieldContent NoteField = "content"
	FieldTag     NoteField = "tag"
	FieldCover   NoteField = "cover"
)

func (f NoteField) Valid() bool {
	switch f {
	case FieldTitle, FieldContent, FieldTag, FieldCover:
		return true
	}
	return false
}

type Note struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"owner_id"`
	ProjectID *string `json:"project_id"`
	FolderID  *string `json:"folder_id"`

	Title   string `json:"title"`
	Content string `json:"content"`
	Tag     string `json:"tag"`
	Cover   string `json:"cover"`

	Trashed   bool      `json:"trashed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastWriteID is the write-id of the session that produced this state.
	LastWriteID  string `json:"last_write_id,omitempty"`
	LastEditorID string `json:"last_editor_id,omitempty"`
}

// NoteContent is the set of fields owned by an editing session. Saves always
// overwrite all of them together.
type NoteContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Tag     string `json:"tag"`
	Cover   string `json:"cover"`
}

func (n *Note) ContentFields() NoteContent {
	return NoteContent{Title: n.Title, Content: n.Content, Tag: n.Tag, Cover: n.Cover}
}

func (c NoteContent) Get(f NoteField) string {
	switch f {
	case FieldTitle:
		return c.Title
	case FieldContent:
		return c.Content
	case FieldTag:
		return c.Tag
	case FieldCover:
		return c.Cover
	}
	return ""
}

func (c *NoteContent) Set(f NoteField, v string) {
	switch f {
	case FieldTitle:
		c.Title = v
	case FieldContent:
		c.Content = v
	case FieldTag:
		c.Tag = v
	case FieldCover:
		c.Cover = v
	}
}

// Diff lists the fields whose values differ between c and other.
func (c NoteContent) Diff(other NoteContent) []NoteField {
	var fields []NoteField
	for _, f := range []NoteField{FieldTitle, FieldContent, FieldTag, FieldCover} {
		if c.Get(f) != other.Get(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

func (n *Note) IsPersonal() bool {
	return n.ProjectID == nil || *n.ProjectID == ""
}

type CreateNoteRequest struct {
	ProjectID *string `json:"project_id"`
	FolderID  *string `json:"folder_id"`
	Title     string  `json:"title" validate:"max=300"`
	Content   string  `json:"content"`
	Tag       string  `json:"tag" validate:"max=50"`
	Cover     string  `json:"cover" validate:"omitempty,url"`
	CloneFrom string  `json:"clone_from"`
}

type SaveNoteRequest struct {
	Title   string `json:"title" validate:"max=300"`
	Content string `json:"content"`
	Tag     string `json:"tag" validate:"max=50"`
	Cover   string `json:"cover" validate:"omitempty,url"`
}

type MoveNoteRequest struct {
	ProjectID *string `json:"project_id"`
	FolderID  *string `json:"folder_id"`
}
