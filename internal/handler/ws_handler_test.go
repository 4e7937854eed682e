package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/websocket"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, token string) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *ws.Conn, msgType websocket.MessageType, payload interface{}) {
	t.Helper()
	msg, err := websocket.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// waitFor reads frames until one of type want satisfies match.
func waitFor(t *testing.T, conn *ws.Conn, want websocket.MessageType, into interface{}, match func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", want)
		if msg.Type != want {
			continue
		}
		if into != nil {
			require.NoError(t, msg.UnmarshalPayload(into))
		}
		if match == nil || match() {
			return
		}
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketEditingSession(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ownerToken, _ := s.signup(t, "owen")
	editorToken, editorID := s.signup(t, "eve")

	code, env := s.do(t, http.MethodPost, "/api/v1/projects", ownerToken, domain.CreateProjectRequest{Name: "Docs"})
	require.Equal(t, http.StatusCreated, code)
	var project domain.Project
	decodeData(t, env, &project)
	code, _ = s.do(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/collaborators", ownerToken,
		domain.AddCollaboratorRequest{Email: "eve@example.com", Role: domain.RoleEditor})
	require.Equal(t, http.StatusCreated, code)

	pid := project.ID
	code, env = s.do(t, http.MethodPost, "/api/v1/notes", ownerToken, domain.CreateNoteRequest{ProjectID: &pid, Title: "Shared"})
	require.Equal(t, http.StatusCreated, code)
	var note domain.Note
	decodeData(t, env, &note)

	mine := dial(t, srv, ownerToken)
	theirs := dial(t, srv, editorToken)

	send(t, mine, websocket.TypePing, nil)
	waitFor(t, mine, websocket.TypePong, nil, nil)

	send(t, mine, websocket.TypeOpenNote, websocket.NotePayload{NoteID: note.ID})
	var state websocket.NoteStatePayload
	waitFor(t, mine, websocket.TypeNoteState, &state, nil)
	assert.False(t, state.ReadOnly)
	assert.Equal(t, "Shared", state.Note.Title)
	assert.NotEmpty(t, state.SessionID)

	send(t, theirs, websocket.TypeOpenNote, websocket.NotePayload{NoteID: note.ID})
	waitFor(t, theirs, websocket.TypeNoteState, nil, nil)

	var seen websocket.PresencePayload
	waitFor(t, mine, websocket.TypePresence, &seen, func() bool {
		return len(seen.Users) == 1 && seen.Users[0].UserID == editorID
	})

	send(t, theirs, websocket.TypeEdit, websocket.EditPayload{NoteID: note.ID, Field: domain.FieldContent, Value: "from eve"})
	var saved websocket.SavedPayload
	waitFor(t, theirs, websocket.TypeSaved, &saved, nil)
	assert.Equal(t, "auto", saved.Kind)

	var changed websocket.NoteChangedPayload
	waitFor(t, mine, websocket.TypeNoteChanged, &changed, nil)
	assert.Equal(t, []domain.NoteField{domain.FieldContent}, changed.Fields)
	assert.Equal(t, "from eve", changed.Note.Content)

	send(t, theirs, websocket.TypeCloseNote, websocket.NotePayload{NoteID: note.ID})
	waitFor(t, mine, websocket.TypePresence, &seen, func() bool { return len(seen.Users) == 0 })

	send(t, mine, websocket.TypeEdit, websocket.EditPayload{NoteID: "elsewhere", Field: domain.FieldTitle, Value: "x"})
	var failure websocket.ErrorPayload
	waitFor(t, mine, websocket.TypeError, &failure, nil)
	assert.Equal(t, websocket.TypeEdit, failure.Request)

	send(t, mine, websocket.TypeWatchVersions, websocket.NotePayload{NoteID: note.ID})
	var versions websocket.VersionsPayload
	waitFor(t, mine, websocket.TypeVersions, &versions, func() bool {
		for _, v := range versions.Versions {
			if v.Label == domain.LabelOnExit && v.EditorID == editorID {
				return true
			}
		}
		return false
	})
}

func TestWebSocketDisconnectClosesSessions(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token, _ := s.signup(t, "dan")
	code, env := s.do(t, http.MethodPost, "/api/v1/notes", token, domain.CreateNoteRequest{Title: "Scratch"})
	require.Equal(t, http.StatusCreated, code)
	var note domain.Note
	decodeData(t, env, &note)

	conn := dial(t, srv, token)
	send(t, conn, websocket.TypeOpenNote, websocket.NotePayload{NoteID: note.ID})
	waitFor(t, conn, websocket.TypeNoteState, nil, nil)
	send(t, conn, websocket.TypeSetAutosave, websocket.SetAutosavePayload{NoteID: note.ID, Enabled: false})
	send(t, conn, websocket.TypeEdit, websocket.EditPayload{NoteID: note.ID, Field: domain.FieldTitle, Value: "Unsaved title"})
	send(t, conn, websocket.TypePing, nil)
	waitFor(t, conn, websocket.TypePong, nil, nil)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		stored, err := s.notes.FindByID(t.Context(), note.ID)
		return err == nil && stored.Title == "Unsaved title"
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return s.manager.GetUserConnections(note.OwnerID) == 0
	}, 3*time.Second, 10*time.Millisecond)
}
