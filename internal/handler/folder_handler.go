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

type FolderHandler struct {
	folders  *service.FolderService
	users    IdentityResolver
	validate *validator.Validate
}

func NewFolderHandler(folders *service.FolderService, users IdentityResolver) *FolderHandler {
	return &FolderHandler{folders: folders, users: users, validate: validator.New()}
}

func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.CreateFolderRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	folder, err := h.folders.Create(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, folder)
}

func (h *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	folders, err := h.folders.List(r.Context(), who, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, folders)
}

func (h *FolderHandler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.UpdateFolderRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	folder, err := h.folders.Update(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, folder)
}

func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.folders.Delete(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.NoContent(w)
}
