package handler

import (
	"net/http"

	"notemv-server/internal/domain"
	"notemv-server/internal/service"
	"notemv-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type NoteHandler struct {
	service  *service.NoteService
	versions *service.VersionService
	users    IdentityResolver
	validate *validator.Validate
}

func NewNoteHandler(notes *service.NoteService, versions *service.VersionService, users IdentityResolver) *NoteHandler {
	return &NoteHandler{
		service:  notes,
		versions: versions,
		users:    users,
		validate: validator.New(),
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.CreateNoteRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	note, err := h.service.Create(r.Context(), who, &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *NoteHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *NoteHandler) list(w http.ResponseWriter, r *http.Request, trashed bool) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	notes, err := h.service.List(r.Context(), who, trashed)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, notes)
}

type noteView struct {
	*domain.Note
	Role domain.Role `json:"role"`
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	note, role, err := h.service.Get(r.Context(), who, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, noteView{Note: note, Role: role})
}

// Save overwrites all content fields. Open editing sessions see it as a
// remote change.
func (h *NoteHandler) Save(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.SaveNoteRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	note, err := h.service.Save(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Move(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.MoveNoteRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	note, err := h.service.Move(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Trash(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.service.Trash(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Message(w, "Note moved to trash")
}

func (h *NoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.service.Restore(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Message(w, "Note restored")
}

func (h *NoteHandler) Purge(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.service.Purge(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.NoContent(w)
}

func (h *NoteHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	versions, err := h.versions.List(r.Context(), who, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, versions)
}

func (h *NoteHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.CreateVersionRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	version, err := h.versions.Create(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, version)
}

func (h *NoteHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	version, err := h.versions.Get(r.Context(), who, vars["id"], vars["vid"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, version)
}

// RestoreVersion needs {"confirm": true}; the replaced state is not
// snapshotted.
func (h *NoteHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.RestoreVersionRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	vars := mux.Vars(r)
	note, err := h.versions.Restore(r.Context(), who, vars["id"], vars["vid"], req.Confirm)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, note)
}
