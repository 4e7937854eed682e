package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceLog struct {
	mu   sync.Mutex
	last []*domain.Presence
	n    int
}

func (l *presenceLog) set(records []*domain.Presence) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = records
	l.n++
}

func (l *presenceLog) users() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for _, r := range l.last {
		ids = append(ids, r.UserID)
	}
	return ids
}

func TestEditorService_RolesDecideReadOnly(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)
	note := f.projectNote(t, p.ID, "Board")

	ro, err := f.editorSvc.Open(ctx, viewer, note.ID, nil)
	require.NoError(t, err)
	assert.True(t, ro.ReadOnly())
	assert.ErrorIs(t, ro.Edit(domain.FieldTitle, "x"), session.ErrReadOnly)
	require.NoError(t, ro.Close(ctx))

	rw, err := f.editorSvc.Open(ctx, editor, note.ID, nil)
	require.NoError(t, err)
	assert.False(t, rw.ReadOnly())
	require.NoError(t, rw.Close(ctx))

	_, err = f.editorSvc.Open(ctx, guest, note.ID, nil)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.editorSvc.Open(ctx, owner, "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditorService_PresenceExcludesSelf(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)
	note := f.projectNote(t, p.ID, "Together")

	var ownerView presenceLog
	sub, err := f.editorSvc.WatchPresence(ctx, owner, note.ID, ownerView.set)
	require.NoError(t, err)
	defer sub.Close()

	mine, err := f.editorSvc.Open(ctx, owner, note.ID, nil)
	require.NoError(t, err)
	theirs, err := f.editorSvc.Open(ctx, editor, note.ID, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		users := ownerView.users()
		return len(users) == 1 && users[0] == editor.ID
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, theirs.Close(ctx))
	require.Eventually(t, func() bool { return len(ownerView.users()) == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, mine.Close(ctx))
}

func TestEditorService_RestoreThroughSession(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()

	note, err := f.noteSvc.Create(ctx, owner, &domain.CreateNoteRequest{Title: "Draft v1", Content: "one"})
	require.NoError(t, err)
	v1, err := f.versionSvc.Snapshot(ctx, note.ID, note.ContentFields(), owner, domain.LabelManual, "")
	require.NoError(t, err)

	sess, err := f.editorSvc.Open(ctx, owner, note.ID, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Edit(domain.FieldTitle, "Draft v2"))

	assert.ErrorIs(t, f.editorSvc.Restore(ctx, sess, v1.ID, false), ErrConfirmationRequired)
	assert.ErrorIs(t, f.editorSvc.Restore(ctx, sess, "missing", true), ErrNotFound)
	require.NoError(t, f.editorSvc.Restore(ctx, sess, v1.ID, true))
	assert.Equal(t, "Draft v1", sess.Content().Title)

	stored, err := f.notes.FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft v1", stored.Title)

	versions, err := f.versions.ListByNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	require.NoError(t, sess.Close(ctx))
}
