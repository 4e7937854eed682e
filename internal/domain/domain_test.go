package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProjectNormalize(t *testing.T) {
	p := &Project{
		OwnerEmail: "Owner@X.io",
		Access:     []string{"owner@x.io", "stale@x.io"},
		Collaborators: []Collaborator{
			{Email: " Ed@X.io", Role: RoleEditor},
			{Email: "viewer@x.io", Role: RoleViewer},
		},
	}

	p.Normalize()

	assert.Equal(t, []string{"owner@x.io", "stale@x.io", "ed@x.io", "viewer@x.io"}, p.Access)
	assert.Equal(t, "ed@x.io", p.Collaborators[0].Email)
}

func TestProjectRoleOf(t *testing.T) {
	p := &Project{
		OwnerID:       "owner",
		OwnerEmail:    "owner@x.io",
		Access:        []string{"owner@x.io", "ed@x.io", "legacy@x.io"},
		Collaborators: []Collaborator{{Email: "ed@x.io", Role: RoleEditor}},
	}

	tests := []struct {
		name   string
		userID string
		email  string
		want   Role
	}{
		{"owner by id", "owner", "other@x.io", RoleOwner},
		{"collaborator role", "u2", "ED@x.io", RoleEditor},
		{"access without detail is viewer", "u3", "legacy@x.io", RoleViewer},
		{"stranger", "u4", "nobody@x.io", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.RoleOf(tt.userID, tt.email))
		})
	}

	assert.True(t, RoleEditor.CanEdit())
	assert.False(t, RoleViewer.CanEdit())
}

func TestNoteContentDiff(t *testing.T) {
	a := NoteContent{Title: "Draft", Content: "<p>x</p>", Tag: DefaultTag}
	b := a
	b.Title = "Draft v2"
	b.Cover = "https://img"

	assert.Equal(t, []NoteField{FieldTitle, FieldCover}, a.Diff(b))
	assert.Empty(t, a.Diff(a))
}

func TestPresenceStale(t *testing.T) {
	now := time.Now()
	p := &Presence{HeartbeatAt: now.Add(-time.Minute)}

	assert.True(t, p.Stale(now, 30*time.Second))
	assert.False(t, p.Stale(now, 2*time.Minute))
	assert.False(t, p.Stale(now, 0))
}
