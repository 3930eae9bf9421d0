// Package google implements streaming recognition on Google Cloud
// Speech-to-Text.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	stt "github.com/yegors/co-subtitles/internal/speech"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Config contains the Google recognizer settings
type Config struct {
	CredentialsFile string // service account JSON, empty for ADC
	Model           string // optional recognition model, e.g. "latest_long"
	InterimResults  bool
}

// Recognizer streams audio to Cloud Speech-to-Text
type Recognizer struct {
	client *speech.Client
	cfg    Config
	logger *logger.Logger
}

// NewRecognizer dials the Speech API. Extra client options are appended
// after the ones derived from cfg.
func NewRecognizer(ctx context.Context, cfg Config, log *logger.Logger, opts ...option.ClientOption) (*Recognizer, error) {
	var all []option.ClientOption
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, opts...)

	client, err := speech.NewClient(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &Recognizer{
		client: client,
		cfg:    cfg,
		logger: log.Named("google-stt"),
	}, nil
}

// Name implements speech.Recognizer
func (r *Recognizer) Name() string { return "google" }

// Close releases the underlying connection
func (r *Recognizer) Close() error {
	return r.client.Close()
}

// Recognize implements speech.Recognizer
func (r *Recognizer) Recognize(ctx context.Context, cfg stt.StreamConfig, src stt.AudioSource, onResult func(stt.Result)) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := r.client.StreamingRecognize(streamCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to open recognition stream: %w", err)
	}

	if err := stream.Send(r.configRequest(cfg)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to send stream config: %w", err)
	}
	r.logger.Debug("Recognition stream opened", logger.String("language", cfg.LanguageCode))

	uploadDone := make(chan error, 1)
	go func() {
		uploadDone <- upload(streamCtx, stream, src)
	}()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			cancel()
			upErr := <-uploadDone
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(upErr, io.EOF) {
				// audio ended and the service reported the close as an error
				return io.EOF
			}
			return fmt.Errorf("recognition stream failed: %w", err)
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			cancel()
			<-uploadDone
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("recognition error %d: %s", st.GetCode(), st.GetMessage())
		}

		if text, final := transcript(resp); text != "" {
			onResult(stt.Result{Text: text, Final: final})
		}
	}

	// The service closed its side. If the upload is still waiting for audio
	// it has to be released before we can report how the stream ended.
	cancel()
	upErr := <-uploadDone
	if stt.IsEndOfStream(upErr) {
		return upErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (r *Recognizer) configRequest(cfg stt.StreamConfig) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(cfg.SampleRate),
					AudioChannelCount:          1,
					LanguageCode:               cfg.LanguageCode,
					EnableAutomaticPunctuation: cfg.Punctuation,
					Model:                      r.cfg.Model,
				},
				InterimResults: r.cfg.InterimResults,
			},
		},
	}
}

type sender interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	CloseSend() error
}

// upload pushes audio until the source stops, then half-closes the stream.
func upload(ctx context.Context, stream sender, src stt.AudioSource) error {
	for {
		buf, err := src.Next(ctx)
		if err != nil {
			_ = stream.CloseSend()
			return err
		}
		req := &speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: buf},
		}
		if err := stream.Send(req); err != nil {
			_ = stream.CloseSend()
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}
}

// transcript joins the top alternative of every result in a response. A
// response may carry a stable prefix followed by less stable results.
func transcript(resp *speechpb.StreamingRecognizeResponse) (string, bool) {
	var b strings.Builder
	final := len(resp.GetResults()) > 0
	for _, res := range resp.GetResults() {
		alts := res.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		b.WriteString(alts[0].GetTranscript())
		if !res.GetIsFinal() {
			final = false
		}
	}
	return strings.TrimSpace(b.String()), final
}
