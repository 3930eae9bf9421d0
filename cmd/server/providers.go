package main

import (
	"context"
	"fmt"
	"io"

	"github.com/yegors/co-subtitles/internal/config"
	"github.com/yegors/co-subtitles/internal/session"
	"github.com/yegors/co-subtitles/internal/speech/google"
	"github.com/yegors/co-subtitles/internal/speech/openai"
	"github.com/yegors/co-subtitles/internal/translate"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// newProviders builds the recognizer and translator named in cfg. The
// returned closers release their client connections.
func newProviders(ctx context.Context, cfg *config.Config, log *logger.Logger) (session.Providers, []io.Closer, error) {
	var (
		p       session.Providers
		closers []io.Closer
	)

	switch cfg.Speech.Provider {
	case config.ProviderGoogle:
		rec, err := google.NewRecognizer(ctx, google.Config{
			CredentialsFile: cfg.Speech.GoogleCredentials,
			Model:           cfg.Speech.GoogleModel,
			InterimResults:  true,
		}, log)
		if err != nil {
			return p, nil, fmt.Errorf("failed to create Google recognizer: %w", err)
		}
		p.Recognizer = rec
		closers = append(closers, rec)
	case config.ProviderOpenAI:
		p.Recognizer = openai.NewClient(openai.Config{
			APIKey:         cfg.Speech.OpenAIAPIKey,
			BaseURL:        cfg.Speech.OpenAIBaseURL,
			Model:          cfg.Speech.OpenAIModel,
			NoiseReduction: cfg.Speech.OpenAINoiseReduction,
			Prompt:         cfg.Speech.OpenAIPrompt,
			TimeoutSeconds: cfg.Speech.TimeoutSeconds,
		}, log)
	default:
		return p, nil, fmt.Errorf("unknown speech provider: %s", cfg.Speech.Provider)
	}

	switch cfg.Translation.Provider {
	case config.ProviderGemini:
		tr, err := translate.NewGemini(ctx, translate.GeminiConfig{
			APIKey:      cfg.Translation.GeminiAPIKey,
			BaseURL:     cfg.Translation.GeminiBaseURL,
			Model:       cfg.Translation.GeminiModel,
			Temperature: float32(cfg.Translation.Temperature),
		}, log)
		if err != nil {
			closeAll(closers, log)
			return p, nil, fmt.Errorf("failed to create Gemini translator: %w", err)
		}
		p.Translator = tr
	case config.ProviderGoogle:
		tr, err := translate.NewGoogle(ctx, translate.GoogleConfig{
			CredentialsFile: cfg.Translation.GoogleCredentials,
			APIKey:          cfg.Translation.GoogleAPIKey,
			Model:           cfg.Translation.GoogleModel,
		}, log)
		if err != nil {
			closeAll(closers, log)
			return p, nil, fmt.Errorf("failed to create Google translator: %w", err)
		}
		p.Translator = tr
		closers = append(closers, tr)
	case config.ProviderOpenAI:
		p.Translator = translate.NewOpenAI(translate.OpenAIConfig{
			APIKey:         cfg.Translation.OpenAIAPIKey,
			BaseURL:        cfg.Translation.OpenAIBaseURL,
			Model:          cfg.Translation.OpenAIModel,
			Temperature:    cfg.Translation.Temperature,
			MaxTokens:      cfg.Translation.MaxTokens,
			TimeoutSeconds: cfg.Translation.TimeoutSeconds,
		}, log)
	case config.ProviderNone:
		p.Translator = translate.Identity{}
	default:
		closeAll(closers, log)
		return p, nil, fmt.Errorf("unknown translation provider: %s", cfg.Translation.Provider)
	}

	return p, closers, nil
}

func closeAll(closers []io.Closer, log *logger.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn("Failed to close provider", logger.Error(err))
		}
	}
}
