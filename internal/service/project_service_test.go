package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectService_CreateKeepsOwnerInAccess(t *testing.T) {
	f := newFixture(t, Retention{})

	p, err := f.projectSvc.Create(context.Background(), owner, &domain.CreateProjectRequest{Name: "Site"})
	require.NoError(t, err)

	assert.Equal(t, []string{owner.Email}, p.Access)
	assert.Equal(t, domain.DefaultProjectDescription, p.Description)
	assert.Equal(t, defaultProjectStatus, p.Status)
	assert.Equal(t, domain.RoleOwner, p.RoleOf(owner.ID, owner.Email))
}

func TestProjectService_CollaboratorInvariants(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)

	assert.ElementsMatch(t, []string{owner.Email, editor.Email, viewer.Email}, p.Access)
	assert.Equal(t, owner.Email, p.Access[0])
	assert.Equal(t, domain.RoleEditor, p.RoleOf(editor.ID, editor.Email))
	assert.Equal(t, domain.RoleViewer, p.RoleOf(viewer.ID, "VERA@example.com "))
	assert.Equal(t, domain.Role(""), p.RoleOf(guest.ID, guest.Email))

	_, err := f.projectSvc.AddCollaborator(ctx, owner, p.ID, &domain.AddCollaboratorRequest{Email: owner.Email, Role: domain.RoleEditor})
	assert.ErrorIs(t, err, ErrInvalidCollaborator)

	_, err = f.projectSvc.AddCollaborator(ctx, owner, p.ID, &domain.AddCollaboratorRequest{Email: "Eddie@Example.com", Role: domain.RoleViewer})
	assert.ErrorIs(t, err, ErrInvalidCollaborator)

	_, err = f.projectSvc.AddCollaborator(ctx, editor, p.ID, &domain.AddCollaboratorRequest{Email: guest.Email, Role: domain.RoleViewer})
	assert.ErrorIs(t, err, ErrOwnerRequired)

	p, err = f.projectSvc.UpdateCollaborator(ctx, owner, p.ID, viewer.Email, &domain.UpdateCollaboratorRequest{Role: domain.RoleEditor})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, p.RoleOf(viewer.ID, viewer.Email))

	_, err = f.projectSvc.UpdateCollaborator(ctx, owner, p.ID, guest.Email, &domain.UpdateCollaboratorRequest{Role: domain.RoleEditor})
	assert.ErrorIs(t, err, ErrNotFound)

	p, err = f.projectSvc.RemoveCollaborator(ctx, owner, p.ID, editor.Email)
	require.NoError(t, err)
	assert.NotContains(t, p.Access, editor.Email)
	assert.Equal(t, domain.Role(""), p.RoleOf(editor.ID, editor.Email))
	assert.Contains(t, p.Access, owner.Email)

	_, err = f.projectSvc.RemoveCollaborator(ctx, owner, p.ID, owner.Email)
	assert.ErrorIs(t, err, ErrInvalidCollaborator)

	_, err = f.projectSvc.RemoveCollaborator(ctx, owner, p.ID, guest.Email)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.projects.FindByID(ctx, p.ID)
	require.NoError(t, err)
	for _, c := range stored.Collaborators {
		assert.Contains(t, stored.Access, c.Email)
	}
}

func TestProjectService_ListOwnedAndShared(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)

	_, err := f.projectSvc.Create(ctx, editor, &domain.CreateProjectRequest{Name: "Side"})
	require.NoError(t, err)

	mine, err := f.projectSvc.List(ctx, editor, false)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.projectSvc.List(ctx, guest, false)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	require.NoError(t, f.projectSvc.Trash(ctx, owner, p.ID))
	mine, err = f.projectSvc.List(ctx, editor, false)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	trashed, err := f.projectSvc.List(ctx, owner, true)
	require.NoError(t, err)
	assert.Len(t, trashed, 1)

	theirTrash, err := f.projectSvc.List(ctx, editor, true)
	require.NoError(t, err)
	assert.Empty(t, theirTrash)

	assert.ErrorIs(t, f.projectSvc.Restore(ctx, editor, p.ID), ErrNotFound)
	require.NoError(t, f.projectSvc.Restore(ctx, owner, p.ID))
}

func TestProjectService_EditorsChangeContent(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)

	name := "Renamed"
	updated, err := f.projectSvc.Update(ctx, editor, p.ID, &domain.UpdateProjectRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = f.projectSvc.Update(ctx, viewer, p.ID, &domain.UpdateProjectRequest{Name: &name})
	assert.ErrorIs(t, err, ErrAccessDenied)

	withFile, err := f.projectSvc.AddAttachment(ctx, editor, p.ID, &domain.AddAttachmentRequest{Name: "brief.pdf", URL: "https://files.example.com/brief.pdf"})
	require.NoError(t, err)
	require.Len(t, withFile.Attachments, 1)
	assert.Equal(t, "brief.pdf", withFile.Attachments[0].Name)
}

func TestProjectService_Stats(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)
	f.projectNote(t, p.ID, "One")

	for _, status := range []domain.TaskStatus{domain.TaskTodo, domain.TaskTodo, domain.TaskDoing, domain.TaskDone} {
		_, err := f.taskSvc.Create(ctx, editor, p.ID, &domain.CreateTaskRequest{Title: "t", Status: status})
		require.NoError(t, err)
	}

	stats, err := f.projectSvc.Stats(ctx, viewer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStats{Todo: 2, Doing: 1, Done: 1, Total: 4, Notes: 1}, *stats)
}

func TestProjectService_WatchReportsLostAccess(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)

	var mu sync.Mutex
	var got []*domain.Project
	sub, err := f.projectSvc.Watch(ctx, editor, p.ID, func(p *domain.Project) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
	})
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.projectSvc.RemoveCollaborator(ctx, owner, p.ID, editor.Email)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2 && got[0] != nil && got[1] == nil
	}, time.Second, 5*time.Millisecond)

	_, err = f.projectSvc.Watch(ctx, guest, p.ID, func(*domain.Project) {})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestProjectService_TrashedProjectIsGone(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)
	n := f.projectNote(t, p.ID, "Plan")

	var mu sync.Mutex
	var got []*domain.Project
	sub, err := f.projectSvc.Watch(ctx, editor, p.ID, func(p *domain.Project) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.projectSvc.Trash(ctx, owner, p.ID))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2 && got[len(got)-1] == nil
	}, time.Second, 5*time.Millisecond)

	_, _, err = f.projectSvc.Get(ctx, editor, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.noteSvc.Get(ctx, viewer, n.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.chatSvc.Send(ctx, editor, p.ID, &domain.SendMessageRequest{Text: "still here?"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, role, err := f.projectSvc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)

	require.NoError(t, f.projectSvc.Restore(ctx, owner, p.ID))
	_, role, err = f.projectSvc.Get(ctx, editor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, role)
}

func TestProjectService_Purge(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)
	other := f.sharedProject(t)

	kept := f.projectNote(t, p.ID, "Kept")
	binned := f.projectNote(t, p.ID, "Binned")
	survivor := f.projectNote(t, other.ID, "Elsewhere")
	_, err := f.versionSvc.Create(ctx, owner, kept.ID, &domain.CreateVersionRequest{Name: "first"})
	require.NoError(t, err)
	require.NoError(t, f.noteSvc.Trash(ctx, owner, binned.ID))
	_, err = f.folderSvc.Create(ctx, editor, p.ID, &domain.CreateFolderRequest{Name: "Docs"})
	require.NoError(t, err)
	_, err = f.taskSvc.Create(ctx, editor, p.ID, &domain.CreateTaskRequest{Title: "Ship"})
	require.NoError(t, err)
	_, err = f.chatSvc.Send(ctx, viewer, p.ID, &domain.SendMessageRequest{Text: "bye"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.projectSvc.Purge(ctx, owner, p.ID), ErrNotTrashed)
	assert.ErrorIs(t, f.projectSvc.Purge(ctx, editor, p.ID), ErrOwnerRequired)

	require.NoError(t, f.projectSvc.Trash(ctx, owner, p.ID))
	assert.ErrorIs(t, f.projectSvc.Purge(ctx, editor, p.ID), ErrNotFound)
	require.NoError(t, f.projectSvc.Purge(ctx, owner, p.ID))

	_, err = f.projects.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	for _, id := range []string{kept.ID, binned.ID} {
		_, err = f.notes.FindByID(ctx, id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
	versions, err := f.versions.ListByNote(ctx, kept.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
	folders, err := f.folders.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, folders)
	tasks, err := f.tasks.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	messages, err := f.messages.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	_, err = f.notes.FindByID(ctx, survivor.ID)
	assert.NoError(t, err)
}

func TestFolderAndTaskServices(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)

	root, err := f.folderSvc.Create(ctx, editor, p.ID, &domain.CreateFolderRequest{Name: "Docs"})
	require.NoError(t, err)
	child, err := f.folderSvc.Create(ctx, editor, p.ID, &domain.CreateFolderRequest{Name: "Drafts", ParentID: &root.ID})
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)

	_, err = f.folderSvc.Update(ctx, editor, root.ID, &domain.UpdateFolderRequest{ParentID: &root.ID})
	assert.ErrorIs(t, err, ErrInvalidFolder)

	_, err = f.folderSvc.Create(ctx, viewer, p.ID, &domain.CreateFolderRequest{Name: "Nope"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	folders, err := f.folderSvc.List(ctx, viewer, p.ID)
	require.NoError(t, err)
	assert.Len(t, folders, 2)

	task, err := f.taskSvc.Create(ctx, editor, p.ID, &domain.CreateTaskRequest{Title: "Write intro"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, task.Status)
	assert.Equal(t, domain.PriorityMedium, task.Priority)
	assert.Equal(t, domain.DefaultAssignee, task.Assignee)

	moved, err := f.taskSvc.Move(ctx, editor, task.ID, &domain.MoveTaskRequest{Status: domain.TaskDoing})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDoing, moved.Status)

	_, err = f.taskSvc.Move(ctx, viewer, task.ID, &domain.MoveTaskRequest{Status: domain.TaskDone})
	assert.ErrorIs(t, err, ErrAccessDenied)

	require.NoError(t, f.taskSvc.Delete(ctx, owner, task.ID))
	tasks, err := f.taskSvc.List(ctx, viewer, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestChatService(t *testing.T) {
	f := newFixture(t, Retention{})
	ctx := context.Background()
	p := f.sharedProject(t)

	_, err := f.chatSvc.Send(ctx, owner, p.ID, &domain.SendMessageRequest{Text: "hello"})
	require.NoError(t, err)
	_, err = f.chatSvc.Send(ctx, viewer, p.ID, &domain.SendMessageRequest{Text: "hi"})
	require.NoError(t, err)
	_, err = f.chatSvc.Send(ctx, guest, p.ID, &domain.SendMessageRequest{Text: "let me in"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	msgs, err := f.chatSvc.List(ctx, editor, p.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, viewer.DisplayName, msgs[1].UserName)
}
