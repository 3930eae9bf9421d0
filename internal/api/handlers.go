package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/co-subtitles/internal/config"
	"github.com/yegors/co-subtitles/internal/language"
	"github.com/yegors/co-subtitles/internal/session"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// maxOfferBytes bounds the offer body; real SDP offers are a few KB
const maxOfferBytes = 1 << 20

// Sessions is the part of the session manager the API needs
type Sessions interface {
	Offer(ctx context.Context, req session.OfferRequest) (session.OfferResponse, error)
	List() []session.Info
	Info(id string) (session.Info, bool)
	Count() int
	Close(id string)
}

// Viewers reports the connected websocket viewers
type Viewers interface {
	ClientCount() int
	HandleConnection(w http.ResponseWriter, r *http.Request)
}

// Handler contains the API handlers
type Handler struct {
	sessions  Sessions
	viewers   Viewers
	config    *config.Config
	logger    *logger.Logger
	startedAt time.Time
	version   string
}

// NewHandler creates a new API handler
func NewHandler(sessions Sessions, viewers Viewers, cfg *config.Config, version string, log *logger.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		viewers:   viewers,
		config:    cfg,
		logger:    log.Named("api-handler"),
		startedAt: time.Now(),
		version:   version,
	}
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
}

// CreateOffer answers a browser WebRTC offer and starts a subtitle session
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req session.OfferRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOfferBytes)).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid offer body"})
		return
	}
	if strings.TrimSpace(req.SDP) == "" || req.Type == "" {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "sdp and type are required"})
		return
	}

	ctx := r.Context()
	if timeout := h.config.Server.OfferTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := h.sessions.Offer(ctx, req)
	if err != nil {
		if errors.Is(err, session.ErrUnknownLanguage) {
			WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Failed to answer offer",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to answer offer"})
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetLanguages returns the language catalogue and the default pair
func (h *Handler) GetLanguages(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"languages":           language.All(),
		"default_audio":       h.config.Languages.DefaultAudio,
		"default_translation": h.config.Languages.DefaultTranslation,
	})
}

// GetLanguageMap returns display name -> code, the shape the page loads as
// lang_list.json
func (h *Handler) GetLanguageMap(w http.ResponseWriter, r *http.Request) {
	all := language.All()
	out := make(map[string]string, len(all))
	for _, l := range all {
		out[l.Name] = l.Code
	}
	WriteJSON(w, http.StatusOK, out)
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"sessions":       h.sessions.Count(),
	}
	if h.viewers != nil {
		response["viewers"] = h.viewers.ClientCount()
	}
	WriteJSON(w, http.StatusOK, response)
}

// GetConfig returns the public configuration the page needs
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	c := h.config
	publicConfig := map[string]any{
		"subtitles": map[string]any{
			"window_size":      c.Subtitles.WindowSize,
			"slow_interval_ms": c.Subtitles.SlowIntervalMs,
			"fast_interval_ms": c.Subtitles.FastIntervalMs,
		},
		"audio": map[string]any{
			"sample_rate":       c.Audio.SampleRate,
			"voice_interval_ms": c.Audio.VoiceIntervalMs,
		},
		"speech": map[string]any{
			"provider": c.Speech.Provider,
		},
		"translation": map[string]any{
			"provider": c.Translation.Provider,
		},
		"webrtc": map[string]any{
			"ice_servers": c.WebRTC.ICEServers,
		},
		"languages": map[string]any{
			"default_audio":       c.Languages.DefaultAudio,
			"default_translation": c.Languages.DefaultTranslation,
		},
	}
	WriteJSON(w, http.StatusOK, publicConfig)
}

// GetSessions lists the live sessions
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": h.sessions.List(),
	})
}

// GetSession returns one live session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, ok := h.sessions.Info(chi.URLParam(r, "id"))
	if !ok {
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// DeleteSession stops a live session
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.logger.Info("Closing session on request", logger.String("session_id", id))
	h.sessions.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
