// Package openai implements streaming recognition on the OpenAI Realtime
// transcription API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// DefaultBaseURL is the upstream API endpoint
const DefaultBaseURL = "https://api.openai.com"

// Realtime sessions take 16-bit mono PCM at this rate
const sessionSampleRate = 24000

// Config contains the realtime transcription settings
type Config struct {
	APIKey         string
	BaseURL        string // optional proxy, falls back to OPENAI_API_BASE
	Model          string // e.g. "gpt-4o-transcribe"
	NoiseReduction string // "near_field", "far_field" or empty
	Prompt         string
	TimeoutSeconds int
	DrainTimeout   time.Duration // wait for the last transcript after audio ends
}

// Client talks to the OpenAI realtime endpoints
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	dialer     websocket.Dialer
	logger     *logger.Logger
}

// NewClient creates a client. The base URL is taken from cfg, then the
// OPENAI_API_BASE environment variable, then DefaultBaseURL.
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-transcribe"
	}

	base := cfg.BaseURL
	if base == "" {
		base = os.Getenv("OPENAI_API_BASE")
	}
	if base == "" {
		base = DefaultBaseURL
	}

	l := log.Named("openai-stt")
	if cfg.APIKey == "" {
		l.Warn("OpenAI API key is empty - realtime transcription will not work")
	}

	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
		dialer:     websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger:     l,
	}
}

// toWebSocketBase converts an http(s) base URL to the matching ws(s) URL
func toWebSocketBase(httpBase string) string {
	switch {
	case strings.HasPrefix(httpBase, "https://"):
		return "wss://" + strings.TrimPrefix(httpBase, "https://")
	case strings.HasPrefix(httpBase, "http://"):
		return "ws://" + strings.TrimPrefix(httpBase, "http://")
	}
	return httpBase
}

type sessionRequest struct {
	InputAudioFormat         string               `json:"input_audio_format"`
	InputAudioTranscription  audioTranscription   `json:"input_audio_transcription"`
	InputAudioNoiseReduction *audioNoiseReduction `json:"input_audio_noise_reduction,omitempty"`
	TurnDetection            *turnDetection       `json:"turn_detection,omitempty"`
}

type audioTranscription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

type audioNoiseReduction struct {
	Type string `json:"type"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type sessionResponse struct {
	SessionID    string `json:"session_id"`
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// createSession registers a transcription session and returns its id and
// ephemeral client secret.
func (c *Client) createSession(ctx context.Context, language string) (string, string, error) {
	if c.cfg.APIKey == "" {
		return "", "", fmt.Errorf("OpenAI API key is required for transcription sessions")
	}

	body := sessionRequest{
		InputAudioFormat: "pcm16",
		InputAudioTranscription: audioTranscription{
			Model:    c.cfg.Model,
			Language: language,
			Prompt:   c.cfg.Prompt,
		},
		TurnDetection: &turnDetection{Type: "server_vad"},
	}
	if c.cfg.NoiseReduction != "" {
		body.InputAudioNoiseReduction = &audioNoiseReduction{Type: c.cfg.NoiseReduction}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/realtime/transcription_sessions", bytes.NewReader(jsonData))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("openai-beta", "realtime=v1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, string(bodyBytes))
	}

	var result sessionResponse
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}
	id := result.SessionID
	if id == "" {
		id = result.ID
	}
	if id == "" || result.ClientSecret.Value == "" {
		return "", "", fmt.Errorf("session response is missing id or client secret")
	}

	c.logger.Debug("Created transcription session",
		logger.String("session_id", id),
		logger.String("language", language))
	return id, result.ClientSecret.Value, nil
}

// conn serializes writes on a realtime socket
type conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (c *Client) connect(ctx context.Context, sessionID, secret string) (*conn, error) {
	wsURL := fmt.Sprintf("%s/v1/realtime?session_id=%s", toWebSocketBase(c.baseURL), url.QueryEscape(sessionID))

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+secret)
	headers.Set("openai-beta", "realtime=v1")

	ws, _, err := c.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	return &conn{ws: ws}, nil
}

func (c *conn) sendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("WebSocket connection is closed")
	}
	return c.ws.WriteJSON(v)
}

func (c *conn) receive() ([]byte, error) {
	_, msg, err := c.ws.ReadMessage()
	return msg, err
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
