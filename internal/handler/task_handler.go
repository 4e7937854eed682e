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

type TaskHandler struct {
	tasks    *service.TaskService
	users    IdentityResolver
	validate *validator.Validate
}

func NewTaskHandler(tasks *service.TaskService, users IdentityResolver) *TaskHandler {
	return &TaskHandler{tasks: tasks, users: users, validate: validator.New()}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.CreateTaskRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	task, err := h.tasks.Create(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	tasks, err := h.tasks.List(r.Context(), who, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, tasks)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.UpdateTaskRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	task, err := h.tasks.Update(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, task)
}

func (h *TaskHandler) Move(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.MoveTaskRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	task, err := h.tasks.Move(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), who, mux.Vars(r)["id"]); err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.NoContent(w)
}
