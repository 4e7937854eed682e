package domain

import "time"

type VersionLabel string

const (
	LabelManual   VersionLabel = "manual"
	LabelInterval VersionLabel = "interval"
	LabelOnExit   VersionLabel = "on-exit"
)

// NoteVersion is an immutable snapshot of a note.
type NoteVersion struct {
	ID         string       `json:"id"`
	NoteID     string       `json:"note_id"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	EditorID   string       `json:"editor_id"`
	EditorName string       `json:"editor_name"`
	Label      VersionLabel `json:"label"`
	Name       string       `json:"name,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

type CreateVersionRequest struct {
	Name string `json:"name" validate:"max=100"`
}

type RestoreVersionRequest struct {
	Confirm bool `json:"confirm"`
}
