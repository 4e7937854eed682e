package handler

import (
	"net/http"

	"notemv-server/internal/config"
	"notemv-server/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type Handlers struct {
	Auth      *AuthHandler
	User      *UserHandler
	Note      *NoteHandler
	Project   *ProjectHandler
	Folder    *FolderHandler
	Task      *TaskHandler
	Chat      *ChatHandler
	Upload    *UploadHandler
	WebSocket *WebSocketHandler
}

func NewRouter(h *Handlers, cfg *config.Config, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", h.Auth.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", h.Auth.Refresh).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/logout", h.Auth.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	protected.HandleFunc("/users/me", h.User.GetMe).Methods("GET", "OPTIONS")
	protected.HandleFunc("/users/me", h.User.UpdateMe).Methods("PUT", "OPTIONS")

	protected.HandleFunc("/notes", h.Note.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes", h.Note.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/trash", h.Note.ListTrash).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Save).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Trash).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/notes/{id}/restore", h.Note.Restore).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}/purge", h.Note.Purge).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/notes/{id}/move", h.Note.Move).Methods("PUT", "OPTIONS")

	protected.HandleFunc("/notes/{id}/versions", h.Note.ListVersions).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}/versions", h.Note.CreateVersion).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}/versions/{vid}", h.Note.GetVersion).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}/versions/{vid}/restore", h.Note.RestoreVersion).Methods("POST", "OPTIONS")

	protected.HandleFunc("/projects", h.Project.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/projects", h.Project.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/projects/{id}", h.Project.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/projects/{id}", h.Project.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/projects/{id}", h.Project.Trash).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/projects/{id}/restore", h.Project.Restore).Methods("POST", "OPTIONS")
	protected.HandleFunc("/projects/{id}/purge", h.Project.Purge).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/projects/{id}/stats", h.Project.Stats).Methods("GET", "OPTIONS")
	protected.HandleFunc("/projects/{id}/collaborators", h.Project.AddCollaborator).Methods("POST", "OPTIONS")
	protected.HandleFunc("/projects/{id}/collaborators/{email}", h.Project.UpdateCollaborator).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/projects/{id}/collaborators/{email}", h.Project.RemoveCollaborator).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/projects/{id}/attachments", h.Project.AddAttachment).Methods("POST", "OPTIONS")
	protected.HandleFunc("/projects/{id}/notes", h.Project.ListNotes).Methods("GET", "OPTIONS")

	protected.HandleFunc("/projects/{id}/folders", h.Folder.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/projects/{id}/folders", h.Folder.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/folders/{id}", h.Folder.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/folders/{id}", h.Folder.Delete).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/projects/{id}/tasks", h.Task.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/projects/{id}/tasks", h.Task.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/tasks/{id}", h.Task.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/tasks/{id}", h.Task.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/tasks/{id}/move", h.Task.Move).Methods("PUT", "OPTIONS")

	protected.HandleFunc("/projects/{id}/messages", h.Chat.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/projects/{id}/messages", h.Chat.Send).Methods("POST", "OPTIONS")

	protected.HandleFunc("/uploads/presign", h.Upload.Presign).Methods("POST", "OPTIONS")

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	ws.HandleFunc("", h.WebSocket.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"notemv-server"}`))
}
