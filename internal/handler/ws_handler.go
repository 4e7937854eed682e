package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"notemv-server/internal/config"
	"notemv-server/internal/domain"
	"notemv-server/internal/service"
	"notemv-server/internal/session"
	"notemv-server/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var errNoteNotOpen = errors.New("note is not open on this connection")

type WebSocketHandler struct {
	manager  *websocket.Manager
	users    IdentityResolver
	upgrader ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, users IdentityResolver, cfg config.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		users:   users,
		upgrader: ws.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection runs behind the auth middleware, which accepts the token
// from the query string for browser clients.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}
	logger := zerolog.Ctx(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := websocket.NewClient(uuid.New().String(), who, conn, h.manager)
	if err := h.manager.Register(client); err != nil {
		conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.ClosePolicyViolation, err.Error()))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

type WebSocketMessageHandler struct {
	editor   *service.EditorService
	notes    *service.NoteService
	versions *service.VersionService
	projects *service.ProjectService
	chat     *service.ChatService
}

func NewWebSocketMessageHandler(
	editor *service.EditorService,
	notes *service.NoteService,
	versions *service.VersionService,
	projects *service.ProjectService,
	chat *service.ChatService,
) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		editor:   editor,
		notes:    notes,
		versions: versions,
		projects: projects,
		chat:     chat,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeOpenNote:
		return h.handleOpenNote(ctx, client, msg)
	case websocket.TypeEdit:
		return h.handleEdit(client, msg)
	case websocket.TypeSave:
		return h.handleSave(ctx, client, msg)
	case websocket.TypeRestoreVersion:
		return h.handleRestoreVersion(ctx, client, msg)
	case websocket.TypeCloseNote:
		return h.handleCloseNote(ctx, client, msg)
	case websocket.TypeSetAutosave:
		return h.handleSetAutosave(client, msg)
	case websocket.TypeWatchVersions:
		return h.handleWatchVersions(ctx, client, msg)
	case websocket.TypeWatchProject:
		return h.handleWatchProject(ctx, client, msg)
	case websocket.TypeWatchChat:
		return h.handleWatchChat(ctx, client, msg)
	case websocket.TypeUnwatch:
		return h.handleUnwatch(client, msg)
	case websocket.TypePing:
		return client.SendMessage(websocket.TypePong, nil)
	}
	return fmt.Errorf("unknown message type %q", msg.Type)
}

func (h *WebSocketMessageHandler) handleOpenNote(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.NotePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}

	if sess, ok := client.Session(payload.NoteID); ok {
		return h.sendNoteState(ctx, client, sess)
	}

	sess, err := h.editor.Open(ctx, client.User, payload.NoteID, sessionEvents(client))
	if err != nil {
		return err
	}
	if !client.AddSession(sess) {
		return sess.Close(ctx)
	}

	presence, err := h.editor.WatchPresence(ctx, client.User, payload.NoteID, func(records []*domain.Presence) {
		client.SendMessage(websocket.TypePresence, &websocket.PresencePayload{NoteID: payload.NoteID, Users: records})
	})
	if err != nil {
		client.Logger().Warn().Err(err).Str("note_id", payload.NoteID).Msg("presence watch failed")
	} else {
		client.Watch(websocket.PresenceKey(payload.NoteID), presence)
	}

	// A note removed elsewhere ends the session on its own.
	go func() {
		select {
		case <-sess.Done():
			client.DropSession(sess)
		case <-client.Context().Done():
		}
	}()

	return h.sendNoteState(ctx, client, sess)
}

func (h *WebSocketMessageHandler) sendNoteState(ctx context.Context, client *websocket.Client, sess *session.Session) error {
	note, _, err := h.notes.Get(ctx, client.User, sess.NoteID())
	if err != nil {
		return err
	}
	content := sess.Content()
	note.Title, note.Content, note.Tag, note.Cover = content.Title, content.Content, content.Tag, content.Cover

	return client.SendMessage(websocket.TypeNoteState, &websocket.NoteStatePayload{
		Note:      note,
		ReadOnly:  sess.ReadOnly(),
		SessionID: sess.ID(),
	})
}

// sessionEvents forwards session events to the client as frames.
func sessionEvents(client *websocket.Client) func(session.Event) {
	return func(e session.Event) {
		var err error
		switch e.Type {
		case session.EventSaved:
			err = client.SendMessage(websocket.TypeSaved, &websocket.SavedPayload{NoteID: e.NoteID, At: e.At, Kind: string(e.Kind)})
		case session.EventSaveFailed:
			err = client.SendMessage(websocket.TypeSaveFailed, &websocket.SaveFailedPayload{NoteID: e.NoteID, Error: e.Err.Error()})
		case session.EventRemoteChange:
			err = client.SendMessage(websocket.TypeNoteChanged, &websocket.NoteChangedPayload{NoteID: e.NoteID, Fields: e.Fields, Note: e.Content})
		case session.EventGone:
			client.Unwatch(websocket.PresenceKey(e.NoteID))
			err = client.SendMessage(websocket.TypeNoteGone, &websocket.NotePayload{NoteID: e.NoteID})
		}
		if err != nil {
			client.Logger().Error().Err(err).Str("event", string(e.Type)).Msg("failed to forward session event")
		}
	}
}

func (h *WebSocketMessageHandler) openSession(client *websocket.Client, noteID string) (*session.Session, error) {
	sess, ok := client.Session(noteID)
	if !ok {
		return nil, errNoteNotOpen
	}
	return sess, nil
}

func (h *WebSocketMessageHandler) handleEdit(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.EditPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	sess, err := h.openSession(client, payload.NoteID)
	if err != nil {
		return err
	}
	return sess.Edit(payload.Field, payload.Value)
}

func (h *WebSocketMessageHandler) handleSave(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.SavePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	sess, err := h.openSession(client, payload.NoteID)
	if err != nil {
		return err
	}
	return sess.Save(ctx, payload.Name)
}

func (h *WebSocketMessageHandler) handleRestoreVersion(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.RestoreVersionPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	sess, err := h.openSession(client, payload.NoteID)
	if err != nil {
		return err
	}
	if err := h.editor.Restore(ctx, sess, payload.VersionID, payload.Confirm); err != nil {
		return err
	}
	return h.sendNoteState(ctx, client, sess)
}

func (h *WebSocketMessageHandler) handleCloseNote(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.NotePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	sess, ok := client.TakeSession(payload.NoteID)
	if !ok {
		return errNoteNotOpen
	}
	client.Unwatch(websocket.PresenceKey(payload.NoteID))
	return sess.Close(ctx)
}

func (h *WebSocketMessageHandler) handleSetAutosave(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.SetAutosavePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	sess, err := h.openSession(client, payload.NoteID)
	if err != nil {
		return err
	}
	return sess.SetAutosave(payload.Enabled)
}

func (h *WebSocketMessageHandler) handleWatchVersions(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.NotePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	sub, err := h.versions.Watch(ctx, client.User, payload.NoteID, func(versions []*domain.NoteVersion) {
		client.SendMessage(websocket.TypeVersions, &websocket.VersionsPayload{NoteID: payload.NoteID, Versions: versions})
	})
	if err != nil {
		return err
	}
	client.Watch(websocket.VersionsKey(payload.NoteID), sub)
	return nil
}

func (h *WebSocketMessageHandler) handleWatchProject(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.ProjectPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	key := websocket.ProjectKey(payload.ProjectID)
	sub, err := h.projects.Watch(ctx, client.User, payload.ProjectID, func(p *domain.Project) {
		if p == nil {
			client.SendMessage(websocket.TypeProjectGone, &websocket.ProjectPayload{ProjectID: payload.ProjectID})
			return
		}
		client.SendMessage(websocket.TypeProject, &websocket.ProjectStatePayload{Project: p})
	})
	if err != nil {
		return err
	}
	client.Watch(key, sub)
	return nil
}

func (h *WebSocketMessageHandler) handleWatchChat(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.ProjectPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	sub, err := h.chat.Watch(ctx, client.User, payload.ProjectID, func(messages []*domain.ChatMessage) {
		client.SendMessage(websocket.TypeChat, &websocket.ChatPayload{ProjectID: payload.ProjectID, Messages: messages})
	})
	if err != nil {
		return err
	}
	client.Watch(websocket.ChatKey(payload.ProjectID), sub)
	return nil
}

func (h *WebSocketMessageHandler) handleUnwatch(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.UnwatchPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if !client.Unwatch(payload.Key) {
		return fmt.Errorf("no watch named %q", payload.Key)
	}
	return nil
}
