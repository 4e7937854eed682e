package handler

import (
	"net/http"
	"strconv"

	"notemv-server/internal/domain"
	"notemv-server/internal/service"
	"notemv-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type ProjectHandler struct {
	projects *service.ProjectService
	notes    *service.NoteService
	users    IdentityResolver
	validate *validator.Validate
}

func NewProjectHandler(projects *service.ProjectService, notes *service.NoteService, users IdentityResolver) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		notes:    notes,
		users:    users,
		validate: validator.New(),
	}
}

// trashedParam reads ?trashed=true; anything unparseable counts as false.
func trashedParam(r *http.Request) bool {
	trashed, _ := strconv.ParseBool(r.URL.Query().Get("trashed"))
	return trashed
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.CreateProjectRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	project, err := h.projects.Create(r.Context(), who, &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, project)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	projects, err := h.projects.List(r.Context(), who, trashedParam(r))
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, projects)
}

type projectView struct {
	*domain.Project
	Role domain.Role `json:"role"`
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	project, role, err := h.projects.Get(r.Context(), who, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, projectView{Project: project, Role: role})
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.UpdateProjectRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	project, err := h.projects.Update(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, project)
}

func (h *ProjectHandler) Trash(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.projects.Trash(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Message(w, "Project moved to trash")
}

func (h *ProjectHandler) Restore(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.projects.Restore(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Message(w, "Project restored")
}

func (h *ProjectHandler) Purge(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.projects.Purge(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.NoContent(w)
}

func (h *ProjectHandler) Stats(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	stats, err := h.projects.Stats(r.Context(), who, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, stats)
}

func (h *ProjectHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.AddCollaboratorRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	project, err := h.projects.AddCollaborator(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, project)
}

func (h *ProjectHandler) UpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.UpdateCollaboratorRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	vars := mux.Vars(r)
	project, err := h.projects.UpdateCollaborator(r.Context(), who, vars["id"], vars["email"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, project)
}

func (h *ProjectHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	project, err := h.projects.RemoveCollaborator(r.Context(), who, vars["id"], vars["email"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, project)
}

func (h *ProjectHandler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.AddAttachmentRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	project, err := h.projects.AddAttachment(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, project)
}

func (h *ProjectHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	notes, err := h.notes.ListByProject(r.Context(), who, mux.Vars(r)["id"], trashedParam(r))
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, notes)
}
