package subtitles

// Message types sent to viewers
const (
	MessageTypeSubtitle = "subtitle"
	MessageTypeVoice    = "voice"
)

// SubtitleMessage is the wire form of one render tick, shared by the data
// channel and the websocket viewer.
type SubtitleMessage struct {
	Type              string  `json:"type"`
	NewLineTransc     bool    `json:"new_line_transc"`
	PrevTransc        string  `json:"prev_transc"`
	Transc            string  `json:"transc"`
	TitleTransc       string  `json:"title_transc"`
	NewLineTransl     bool    `json:"new_line_transl"`
	PrevTransl        string  `json:"prev_transl"`
	Transl            string  `json:"transl"`
	TitleTransl       string  `json:"title_transl"`
	AnimationDuration float64 `json:"animation_duration"`
}

// VoiceMessage carries the input level for the microphone animation
type VoiceMessage struct {
	Type  string  `json:"type"`
	Level float64 `json:"level"`
}

// NewSubtitleMessage combines both panels of a tick
func NewSubtitleMessage(transcription, translation RenderUpdate) SubtitleMessage {
	return SubtitleMessage{
		Type:              MessageTypeSubtitle,
		NewLineTransc:     transcription.LineBreak,
		PrevTransc:        transcription.Frozen,
		Transc:            transcription.Live,
		TitleTransc:       transcription.Title,
		NewLineTransl:     translation.LineBreak,
		PrevTransl:        translation.Frozen,
		Transl:            translation.Live,
		TitleTransl:       translation.Title,
		AnimationDuration: transcription.AnimationDuration,
	}
}

// NewVoiceMessage wraps a volume level
func NewVoiceMessage(level float64) VoiceMessage {
	return VoiceMessage{Type: MessageTypeVoice, Level: level}
}
