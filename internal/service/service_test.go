package service

import (
	"context"
	"testing"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/presence"
	"notemv-server/internal/repository"
	"notemv-server/internal/store/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	owner  = domain.Identity{ID: "u-owner", DisplayName: "Olivia", Email: "olivia@example.com"}
	editor = domain.Identity{ID: "u-editor", DisplayName: "Eddie", Email: "eddie@example.com"}
	viewer = domain.Identity{ID: "u-viewer", DisplayName: "Vera", Email: "vera@example.com"}
	guest  = domain.Identity{ID: "u-guest", DisplayName: "Gus", Email: "gus@example.com"}
)

type fixture struct {
	store    *memory.Store
	notes    repository.NoteRepository
	versions repository.VersionRepository
	projects repository.ProjectRepository
	tasks    repository.TaskRepository
	folders  repository.FolderRepository
	messages repository.MessageRepository
	presence presence.Tracker
	access   *Access

	noteSvc    *NoteService
	versionSvc *VersionService
	projectSvc *ProjectService
	folderSvc  *FolderService
	taskSvc    *TaskService
	chatSvc    *ChatService
	editorSvc  *EditorService
}

func newFixture(t *testing.T, retention Retention) *fixture {
	t.Helper()

	s := memory.New()
	f := &fixture{
		store:    s,
		notes:    repository.NewNoteRepository(s),
		versions: repository.NewVersionRepository(s),
		projects: repository.NewProjectRepository(s),
		tasks:    repository.NewTaskRepository(s),
		folders:  repository.NewFolderRepository(s),
		messages: repository.NewMessageRepository(s),
		presence: presence.NewStoreTracker(repository.NewPresenceRepository(s), time.Minute),
	}
	logger := zerolog.Nop()

	f.access = NewAccess(f.notes, f.projects)
	f.noteSvc = NewNoteService(f.notes, f.versions, f.access, logger)
	f.versionSvc = NewVersionService(f.versions, f.notes, f.access, retention, logger)
	f.projectSvc = NewProjectService(f.projects, f.tasks, f.notes, f.versions, f.folders, f.messages, f.access, logger)
	f.folderSvc = NewFolderService(f.folders, f.access)
	f.taskSvc = NewTaskService(f.tasks, f.access)
	f.chatSvc = NewChatService(f.messages, f.access)
	f.editorSvc = NewEditorService(f.access, f.notes, f.versionSvc, f.presence, EditorOptions{
		Debounce:         10 * time.Millisecond,
		SnapshotInterval: time.Hour,
		Heartbeat:        time.Hour,
	}, logger)
	return f
}

// sharedProject creates a project owned by owner with editor and viewer
// invited.
func (f *fixture) sharedProject(t *testing.T) *domain.Project {
	t.Helper()
	ctx := context.Background()

	p, err := f.projectSvc.Create(ctx, owner, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)
	_, err = f.projectSvc.AddCollaborator(ctx, owner, p.ID, &domain.AddCollaboratorRequest{Email: editor.Email, Role: domain.RoleEditor})
	require.NoError(t, err)
	p, err = f.projectSvc.AddCollaborator(ctx, owner, p.ID, &domain.AddCollaboratorRequest{Email: viewer.Email, Role: domain.RoleViewer})
	require.NoError(t, err)
	return p
}

func (f *fixture) projectNote(t *testing.T, projectID, title string) *domain.Note {
	t.Helper()
	n, err := f.noteSvc.Create(context.Background(), owner, &domain.CreateNoteRequest{ProjectID: &projectID, Title: title})
	require.NoError(t, err)
	return n
}
