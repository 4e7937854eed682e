package websocket

import (
	"encoding/json"
	"time"

	"notemv-server/internal/domain"
)

type MessageType string

// Client to server.
const (
	TypeOpenNote       MessageType = "open_note"
	TypeEdit           MessageType = "edit"
	TypeSave           MessageType = "save"
	TypeRestoreVersion MessageType = "restore_version"
	TypeCloseNote      MessageType = "close_note"
	TypeSetAutosave    MessageType = "set_autosave"
	TypeWatchVersions  MessageType = "watch_versions"
	TypeWatchProject   MessageType = "watch_project"
	TypeWatchChat      MessageType = "watch_chat"
	TypeUnwatch        MessageType = "unwatch"
	TypePing           MessageType = "ping"
)

// Server to client.
const (
	TypeNoteState   MessageType = "note_state"
	TypeNoteChanged MessageType = "note_changed"
	TypeSaved       MessageType = "saved"
	TypeSaveFailed  MessageType = "save_failed"
	TypeNoteGone    MessageType = "note_gone"
	TypePresence    MessageType = "presence"
	TypeVersions    MessageType = "versions"
	TypeProject     MessageType = "project"
	TypeProjectGone MessageType = "project_gone"
	TypeChat        MessageType = "chat"
	TypeError       MessageType = "error"
	TypePong        MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type NotePayload struct {
	NoteID string `json:"note_id"`
}

type EditPayload struct {
	NoteID string           `json:"note_id"`
	Field  domain.NoteField `json:"field"`
	Value  string           `json:"value"`
}

type SavePayload struct {
	NoteID string `json:"note_id"`
	Name   string `json:"name,omitempty"`
}

type RestoreVersionPayload struct {
	NoteID    string `json:"note_id"`
	VersionID string `json:"version_id"`
	Confirm   bool   `json:"confirm"`
}

type SetAutosavePayload struct {
	NoteID  string `json:"note_id"`
	Enabled bool   `json:"enabled"`
}

type ProjectPayload struct {
	ProjectID string `json:"project_id"`
}

type UnwatchPayload struct {
	Key string `json:"key"`
}

type NoteStatePayload struct {
	Note      *domain.Note `json:"note"`
	ReadOnly  bool         `json:"read_only"`
	SessionID string       `json:"session_id"`
}

type NoteChangedPayload struct {
	NoteID string             `json:"note_id"`
	Fields []domain.NoteField `json:"fields"`
	Note   domain.NoteContent `json:"note"`
}

type SavedPayload struct {
	NoteID string    `json:"note_id"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
}

type SaveFailedPayload struct {
	NoteID string `json:"note_id"`
	Error  string `json:"error"`
}

type PresencePayload struct {
	NoteID string             `json:"note_id"`
	Users  []*domain.Presence `json:"users"`
}

type VersionsPayload struct {
	NoteID   string                `json:"note_id"`
	Versions []*domain.NoteVersion `json:"versions"`
}

type ProjectStatePayload struct {
	Project *domain.Project `json:"project"`
}

type ChatPayload struct {
	ProjectID string                `json:"project_id"`
	Messages  []*domain.ChatMessage `json:"messages"`
}

type ErrorPayload struct {
	Message string      `json:"message"`
	Request MessageType `json:"request,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Watch keys name one subscription of a client so it can be dropped again.
func VersionsKey(noteID string) string   { return "versions:" + noteID }
func PresenceKey(noteID string) string   { return "presence:" + noteID }
func ProjectKey(projectID string) string { return "project:" + projectID }
func ChatKey(projectID string) string    { return "chat:" + projectID }
