package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/internal/language"
	stt "github.com/yegors/co-subtitles/internal/speech"
	"github.com/yegors/co-subtitles/pkg/logger"
)

var errDrained = errors.New("final transcript received")

// Name implements speech.Recognizer
func (c *Client) Name() string { return "openai" }

// Recognize implements speech.Recognizer. Each call opens a new realtime
// session; the transcript it reports covers that session only.
func (c *Client) Recognize(ctx context.Context, cfg stt.StreamConfig, src stt.AudioSource, onResult func(stt.Result)) error {
	sessionID, secret, err := c.createSession(ctx, language.Base(cfg.LanguageCode))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to create transcription session: %w", err)
	}

	ws, err := c.connect(ctx, sessionID, secret)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer ws.close()

	// unblock the reader when the caller cancels
	stop := context.AfterFunc(ctx, func() { ws.close() })
	defer stop()

	log := c.logger.With(logger.String("session_id", sessionID))
	log.Debug("Realtime transcription connected")

	upCtx, cancelUpload := context.WithCancel(ctx)
	defer cancelUpload()

	var draining atomic.Bool
	acc := newAccumulator(language.UsesSpace(cfg.LanguageCode))

	uploadDone := make(chan error, 1)
	go func() {
		uploadDone <- c.upload(upCtx, ws, src, cfg.SampleRate)
	}()
	readDone := make(chan error, 1)
	go func() {
		readDone <- c.receive(ws, acc, &draining, onResult, log)
	}()

	select {
	case upErr := <-uploadDone:
		if stt.IsEndOfStream(upErr) {
			// flush what the server buffered and wait briefly for its text
			draining.Store(true)
			if err := ws.sendJSON(map[string]string{"type": "input_audio_buffer.commit"}); err == nil {
				select {
				case <-readDone:
				case <-time.After(c.cfg.DrainTimeout):
				case <-ctx.Done():
				}
			}
			ws.close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return upErr
		}
		ws.close()
		<-readDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return upErr

	case rdErr := <-readDone:
		cancelUpload()
		upErr := <-uploadDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if stt.IsEndOfStream(upErr) {
			return upErr
		}
		if errors.Is(rdErr, stt.ErrStreamExpired) {
			return rdErr
		}
		return fmt.Errorf("transcription socket failed: %w", rdErr)
	}
}

func (c *Client) upload(ctx context.Context, ws *conn, src stt.AudioSource, inRate int) error {
	if inRate <= 0 {
		inRate = audio.DefaultSampleRate
	}
	conv := audio.NewPCM16Resampler(inRate, sessionSampleRate)

	for {
		buf, err := src.Next(ctx)
		if err != nil {
			return err
		}
		pcm, err := conv.Process(buf)
		if err != nil {
			return fmt.Errorf("failed to convert audio: %w", err)
		}
		if len(pcm) == 0 {
			continue
		}
		msg := map[string]string{
			"type":  "input_audio_buffer.append",
			"audio": base64.StdEncoding.EncodeToString(pcm),
		}
		if err := ws.sendJSON(msg); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}
}

type serverEvent struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) receive(ws *conn, acc *accumulator, draining *atomic.Bool, onResult func(stt.Result), log *logger.Logger) error {
	// item created by the final commit, its transcript ends the drain
	var lastItem string
	for {
		msg, err := ws.receive()
		if err != nil {
			return err
		}

		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Warn("Error parsing event", logger.Error(err))
			continue
		}

		switch ev.Type {
		case "conversation.item.input_audio_transcription.delta":
			onResult(stt.Result{Text: acc.delta(ev.Delta)})

		case "input_audio_buffer.committed":
			if draining.Load() && lastItem == "" {
				lastItem = ev.ItemID
			}

		case "conversation.item.input_audio_transcription.completed":
			onResult(stt.Result{Text: acc.complete(ev.Transcript), Final: true})
			if lastItem != "" && ev.ItemID == lastItem {
				return errDrained
			}

		case "error":
			if ev.Error == nil {
				continue
			}
			log.Error("Received error from OpenAI",
				logger.String("code", ev.Error.Code),
				logger.String("error", ev.Error.Message))
			if ev.Error.Code == "session_expired" {
				return stt.ErrStreamExpired
			}
		}
	}
}

// accumulator builds the running transcript of one session out of
// completed items and the deltas of the item in progress.
type accumulator struct {
	sep       string
	completed string
	partial   strings.Builder
}

func newAccumulator(usesSpace bool) *accumulator {
	a := &accumulator{}
	if usesSpace {
		a.sep = " "
	}
	return a
}

func (a *accumulator) join(tail string) string {
	tail = strings.TrimSpace(tail)
	switch {
	case a.completed == "":
		return tail
	case tail == "":
		return a.completed
	}
	return a.completed + a.sep + tail
}

func (a *accumulator) delta(d string) string {
	a.partial.WriteString(d)
	return a.join(a.partial.String())
}

func (a *accumulator) complete(transcript string) string {
	a.partial.Reset()
	a.completed = a.join(transcript)
	return a.completed
}
