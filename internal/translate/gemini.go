package translate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/yegors/co-subtitles/pkg/logger"
)

// GeminiConfig contains the Gemini translator settings
type GeminiConfig struct {
	APIKey      string
	BaseURL     string // optional, for proxies and tests
	Model       string
	Temperature float32
}

// Gemini translates with the Gemini generateContent API
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *logger.Logger
}

// NewGemini creates a Gemini translator
func NewGemini(ctx context.Context, cfg GeminiConfig, log *logger.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for translation")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg, logger: log.Named("gemini-translate")}, nil
}

// Name implements Translator
func (g *Gemini) Name() string { return "gemini" }

// Translate implements Translator
func (g *Gemini) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(text), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(source, target), genai.RoleUser),
		Temperature:       genai.Ptr(g.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", fmt.Errorf("empty translation from %s", g.cfg.Model)
	}
	return out, nil
}
