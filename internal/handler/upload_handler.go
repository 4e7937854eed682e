package handler

import (
	"context"
	"net/http"

	"notemv-server/internal/middleware"
	"notemv-server/internal/service"
	"notemv-server/internal/storage"
	"notemv-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type Presigner interface {
	PresignUpload(ctx context.Context, userID string, req *storage.PresignRequest) (*storage.Upload, error)
}

type UploadHandler struct {
	presigner Presigner
	validate  *validator.Validate
}

// NewUploadHandler accepts a nil presigner when no bucket is configured; the
// endpoint then answers 503.
func NewUploadHandler(presigner Presigner) *UploadHandler {
	return &UploadHandler{presigner: presigner, validate: validator.New()}
}

func (h *UploadHandler) Presign(w http.ResponseWriter, r *http.Request) {
	if h.presigner == nil {
		writeError(w, zerolog.Ctx(r.Context()), service.ErrUploadsDisabled)
		return
	}

	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	var req storage.PresignRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	upload, err := h.presigner.PresignUpload(r.Context(), userID, &req)
	if err != nil {
		writeError(w, zerolog.Ctx(r.Context()), err)
		return
	}

	response.Success(w, upload)
}
