package webrtc

import (
	"encoding/json"
	"fmt"

	pion "github.com/pion/webrtc/v4"

	"github.com/yegors/co-subtitles/internal/subtitles"
)

// DataChannelPresenter sends render ticks to the browser over the data
// channel it opened
type DataChannelPresenter struct {
	dc *pion.DataChannel
}

// NewDataChannelPresenter wraps an open data channel
func NewDataChannelPresenter(dc *pion.DataChannel) *DataChannelPresenter {
	return &DataChannelPresenter{dc: dc}
}

// PresentSubtitles implements subtitles.Presenter
func (p *DataChannelPresenter) PresentSubtitles(transcription, translation subtitles.RenderUpdate) error {
	return p.send(subtitles.NewSubtitleMessage(transcription, translation))
}

// PresentVoice implements subtitles.Presenter
func (p *DataChannelPresenter) PresentVoice(level float64) error {
	return p.send(subtitles.NewVoiceMessage(level))
}

// send drops messages while the channel is not open
func (p *DataChannelPresenter) send(v any) error {
	if p.dc.ReadyState() != pion.DataChannelStateOpen {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := p.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("failed to send on data channel %s: %w", p.dc.Label(), err)
	}
	return nil
}
