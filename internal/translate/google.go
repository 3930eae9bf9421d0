package translate

import (
	"context"
	"fmt"
	"strings"

	gtranslate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/yegors/co-subtitles/pkg/logger"
)

// GoogleConfig contains the Cloud Translation settings
type GoogleConfig struct {
	CredentialsFile string
	APIKey          string
	Model           string // "nmt" or "base", empty for the service default
}

// Google translates with the Cloud Translation v2 API
type Google struct {
	client *gtranslate.Client
	cfg    GoogleConfig
	logger *logger.Logger
}

// NewGoogle creates a Cloud Translation client. Extra options are appended
// after the ones derived from cfg.
func NewGoogle(ctx context.Context, cfg GoogleConfig, log *logger.Logger, opts ...option.ClientOption) (*Google, error) {
	var all []option.ClientOption
	switch {
	case cfg.APIKey != "":
		all = append(all, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, opts...)

	client, err := gtranslate.NewClient(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate client: %w", err)
	}
	return &Google{client: client, cfg: cfg, logger: log.Named("google-translate")}, nil
}

// Name implements Translator
func (g *Google) Name() string { return "google" }

// Close releases the client
func (g *Google) Close() error {
	return g.client.Close()
}

// Translate implements Translator
func (g *Google) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	tgt, err := serviceTag(target)
	if err != nil {
		return "", fmt.Errorf("target language %q: %w", target, err)
	}
	opts := &gtranslate.Options{Format: gtranslate.Text, Model: g.cfg.Model}
	if src, err := serviceTag(source); err == nil {
		opts.Source = src
	}

	res, err := g.client.Translate(ctx, []string{text}, tgt, opts)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if len(res) == 0 {
		return "", fmt.Errorf("no translations in response")
	}
	return res[0].Text, nil
}

// serviceTag maps a BCP-47 code to what the v2 API accepts: the base
// language, except for Chinese where the script variant matters.
func serviceTag(code string) (language.Tag, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, err
	}
	base, _ := tag.Base()
	if base.String() == "zh" {
		return tag, nil
	}
	return language.Make(base.String()), nil
}
