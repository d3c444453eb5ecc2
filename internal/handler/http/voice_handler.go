package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/kantinyonetim/canteen-service/internal/order"
	"github.com/kantinyonetim/canteen-service/internal/user"
	"github.com/kantinyonetim/canteen-service/internal/voice"
)

type VoiceOrderer interface {
	Run(ctx context.Context, actor user.Actor, audio []byte, filename string) (*voice.Result, error)
	Parse(ctx context.Context, audio []byte, filename string) (*voice.Result, error)
}

type VoiceOrderResponse struct {
	Transcription string       `json:"transcription"`
	OrderID       string       `json:"order_id"`
	Order         *order.Order `json:"order"`
}

type VoiceParseResponse struct {
	Transcription string               `json:"transcription"`
	Items         []order.ResolvedLine `json:"items"`
}

type VoiceErrorResponse struct {
	Error         string `json:"error"`
	Stage         string `json:"stage,omitempty"`
	Transcription string `json:"transcription,omitempty"`
}

type VoiceHandler struct {
	orderer  VoiceOrderer
	maxBytes int64
}

func NewVoiceHandler(orderer VoiceOrderer, maxBytes int64) *VoiceHandler {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &VoiceHandler{orderer: orderer, maxBytes: maxBytes}
}

func (h *VoiceHandler) RegisterRoutes(router chi.Router) {
	router.Post("/voice-order", h.handlePlace)
	router.Post("/voice-order/parse", h.handleParse)
}

func (h *VoiceHandler) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Audio file is too large")
			return nil, "", false
		}
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to parse multipart form")
		respondWithError(w, http.StatusBadRequest, "Expected multipart form with an audio file")
		return nil, "", false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"audio": "This field is required."},
		})
		return nil, "", false
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to read audio upload")
		respondWithError(w, http.StatusBadRequest, "Failed to read audio file")
		return nil, "", false
	}
	if len(audio) == 0 {
		respondWithError(w, http.StatusBadRequest, "Audio file is empty")
		return nil, "", false
	}
	return audio, header.Filename, true
}

func respondWithVoiceError(w http.ResponseWriter, r *http.Request, res *voice.Result, err error, fallback string) {
	code := mapErrorToStatusCode(err)
	body := VoiceErrorResponse{Error: clientMessage(err)}
	if code == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(fallback)
		body.Error = fallback
	}
	var stageErr *voice.StageError
	if errors.As(err, &stageErr) {
		body.Stage = string(stageErr.Stage)
	}
	if res != nil {
		body.Transcription = res.Transcript
	}
	respondWithJSON(w, code, body)
}

func (h *VoiceHandler) handlePlace(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	audio, filename, ok := h.readAudio(w, r)
	if !ok {
		return
	}

	res, err := h.orderer.Run(r.Context(), actor, audio, filename)
	if err != nil {
		respondWithVoiceError(w, r, res, err, "Failed to place voice order")
		return
	}

	respondWithJSON(w, http.StatusCreated, VoiceOrderResponse{
		Transcription: res.Transcript,
		OrderID:       res.Order.ID.String(),
		Order:         res.Order,
	})
}

func (h *VoiceHandler) handleParse(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentActor(w, r); !ok {
		return
	}
	audio, filename, ok := h.readAudio(w, r)
	if !ok {
		return
	}

	res, err := h.orderer.Parse(r.Context(), audio, filename)
	if err != nil {
		respondWithVoiceError(w, r, res, err, "Failed to parse voice order")
		return
	}

	respondWithJSON(w, http.StatusOK, VoiceParseResponse{
		Transcription: res.Transcript,
		Items:         res.Resolved,
	})
}
