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

type ChatHandler struct {
	chat     *service.ChatService
	users    IdentityResolver
	validate *validator.Validate
}

func NewChatHandler(chat *service.ChatService, users IdentityResolver) *ChatHandler {
	return &ChatHandler{chat: chat, users: users, validate: validator.New()}
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	msg, err := h.chat.Send(r.Context(), who, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Created(w, msg)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := currentIdentity(w, r, h.users)
	if !ok {
		return
	}

	messages, err := h.chat.List(r.Context(), who, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, messages)
}
