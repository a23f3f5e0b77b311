package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type GenerationHandler struct {
	generation *service.GenerationService
	validate   *validator.Validate
	logger     zerolog.Logger
}

func NewGenerationHandler(generation *service.GenerationService, v *validator.Validate, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		generation: generation,
		validate:   v,
		logger:     logger.With().Str("handler", "GenerationHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 generation routes.
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /generate/image", authMw(http.HandlerFunc(h.generateImage)))
	mux.Handle("POST /generate/video", authMw(http.HandlerFunc(h.generateVideo)))
}

// generateImage debits one credit and returns the generated asset URL.
//
// @Summary Generate an image
// @Tags generation
// @Accept json
// @Produce json
// @Success 200 {object} dto.ImageResponseDTO
// @Failure 402 "insufficient credits"
// @Router /v1/generate/image [post]
func (h *GenerationHandler) generateImage(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized: session not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.ImageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	var image []byte
	if req.Image != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			http.Error(w, "Invalid image encoding", http.StatusBadRequest)
			return
		}
		image = decoded
	}

	url, remaining, err := h.generation.GenerateImage(r.Context(), sess.Email, req.Prompt, image, req.MimeType)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			http.Error(w, "insufficient credits", http.StatusPaymentRequired)
			return
		}
		http.Error(w, "Image generation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.ImageResponseDTO{URL: url, Remaining: remaining})
}

// generateVideo debits the video cost and queues an async job.
//
// @Summary Queue a video generation
// @Tags generation
// @Accept json
// @Produce json
// @Success 202 {object} dto.VideoResponseDTO
// @Failure 402 "insufficient credits"
// @Router /v1/generate/video [post]
func (h *GenerationHandler) generateVideo(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized: session not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.VideoRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	remaining, err := h.generation.EnqueueVideoJob(r.Context(), sess.Email, req.Prompt)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			http.Error(w, "insufficient credits", http.StatusPaymentRequired)
			return
		}
		http.Error(w, "Failed to queue video job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(dto.VideoResponseDTO{Status: "queued", Remaining: remaining})
}
