package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"notemv-server/internal/config"
	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
	"notemv-server/internal/session"
	"notemv-server/internal/store/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(maxConn int) *Manager {
	return NewManager(config.WebSocketConfig{
		MaxConnPerUser: maxConn,
		MaxMessageSize: 1 << 20,
		WriteWait:      time.Second,
		PongWait:       time.Minute,
		PingPeriod:     50 * time.Second,
	}, zerolog.Nop())
}

func nextFrame(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return &msg
	case <-time.After(time.Second):
		t.Fatal("no frame sent")
		return nil
	}
}

type handlerFunc func(ctx context.Context, c *Client, msg *Message) error

func (f handlerFunc) HandleWebSocketMessage(ctx context.Context, c *Client, msg *Message) error {
	return f(ctx, c, msg)
}

type fakeSub struct {
	mu     sync.Mutex
	closed int
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type snapshots struct {
	mu     sync.Mutex
	labels []domain.VersionLabel
}

func (s *snapshots) Snapshot(_ context.Context, noteID string, content domain.NoteContent, editor domain.Identity, label domain.VersionLabel, name string) (*domain.NoteVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, label)
	return &domain.NoteVersion{NoteID: noteID, Title: content.Title, Label: label}, nil
}

func TestManagerLimitsConnectionsPerUser(t *testing.T) {
	m := newManager(2)
	alice := domain.Identity{ID: "alice"}

	c1 := NewClient("c1", alice, nil, m)
	c2 := NewClient("c2", alice, nil, m)
	c3 := NewClient("c3", alice, nil, m)

	require.NoError(t, m.Register(c1))
	require.NoError(t, m.Register(c2))
	assert.ErrorIs(t, m.Register(c3), ErrTooManyConnections)
	assert.Equal(t, 2, m.GetUserConnections("alice"))

	m.Unregister(c1)
	assert.Equal(t, 1, m.GetUserConnections("alice"))
	require.NoError(t, m.Register(c3))

	m.Unregister(c2)
	m.Unregister(c3)
	assert.Zero(t, m.GetUserConnections("alice"))
}

func TestDispatchReportsHandlerErrors(t *testing.T) {
	m := newManager(0)
	m.SetMessageHandler(handlerFunc(func(ctx context.Context, c *Client, msg *Message) error {
		if msg.Type == TypePing {
			return c.SendMessage(TypePong, nil)
		}
		return errors.New("nope")
	}))
	c := NewClient("c1", domain.Identity{ID: "u"}, nil, m)

	m.dispatch(c, []byte(`{"type":"ping"}`))
	assert.Equal(t, TypePong, nextFrame(t, c).Type)

	m.dispatch(c, []byte(`{"type":"save","payload":{"note_id":"n"}}`))
	frame := nextFrame(t, c)
	assert.Equal(t, TypeError, frame.Type)
	var payload ErrorPayload
	require.NoError(t, frame.UnmarshalPayload(&payload))
	assert.Equal(t, "nope", payload.Message)
	assert.Equal(t, TypeSave, payload.Request)

	m.dispatch(c, []byte(`not json`))
	assert.Equal(t, TypeError, nextFrame(t, c).Type)
}

func TestClientWatchReplacesAndUnwatches(t *testing.T) {
	c := NewClient("c1", domain.Identity{ID: "u"}, nil, newManager(0))

	first, second := &fakeSub{}, &fakeSub{}
	c.Watch(ChatKey("p1"), first)
	c.Watch(ChatKey("p1"), second)
	assert.Equal(t, 1, first.count())
	assert.True(t, c.Watching(ChatKey("p1")))

	assert.True(t, c.Unwatch(ChatKey("p1")))
	assert.Equal(t, 1, second.count())
	assert.False(t, c.Unwatch(ChatKey("p1")))
}

func TestClientReleaseClosesEverything(t *testing.T) {
	ctx := context.Background()
	notes := repository.NewNoteRepository(memory.New())
	note := &domain.Note{OwnerID: "u", Title: "Draft", Tag: domain.DefaultTag}
	require.NoError(t, notes.Create(ctx, note))

	snaps := &snapshots{}
	who := domain.Identity{ID: "u", DisplayName: "U"}
	sess, err := session.Open(ctx, session.Deps{Notes: notes, Versions: snaps}, note.ID, who, session.Options{
		Debounce:         time.Hour,
		SnapshotInterval: time.Hour,
		Heartbeat:        time.Hour,
		Logger:           zerolog.Nop(),
	})
	require.NoError(t, err)

	c := NewClient("c1", who, nil, newManager(0))
	require.True(t, c.AddSession(sess))
	assert.False(t, c.AddSession(sess), "one session per note")
	sub := &fakeSub{}
	c.Watch(VersionsKey(note.ID), sub)

	require.NoError(t, sess.Edit(domain.FieldContent, "unsaved"))
	c.Release(ctx)

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session still open")
	}
	stored, err := notes.FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "unsaved", stored.Content)
	assert.Equal(t, []domain.VersionLabel{domain.LabelOnExit}, snaps.labels)
	assert.Equal(t, 1, sub.count())
	assert.Error(t, c.Context().Err())

	late := &fakeSub{}
	c.Watch(ChatKey("p"), late)
	assert.Equal(t, 1, late.count(), "watches after release are closed at once")

	c.Release(ctx)
	assert.Equal(t, 1, sub.count())
}

func TestSendAfterUnregisterIsDropped(t *testing.T) {
	m := newManager(0)
	c := NewClient("c1", domain.Identity{ID: "u"}, nil, m)
	require.NoError(t, m.Register(c))
	m.Unregister(c)

	assert.NotPanics(t, func() {
		assert.NoError(t, c.SendMessage(TypePong, nil))
	})
}
