package pipeline

import "sync/atomic"

// TranscriptState holds the latest transcript and translation of a run.
// Each field has a single writer (the transcription unit for Raw, the
// translation unit for Translated); readers always see a whole string.
type TranscriptState struct {
	raw        atomic.Pointer[string]
	translated atomic.Pointer[string]
}

// Raw returns the latest transcript
func (s *TranscriptState) Raw() string {
	if p := s.raw.Load(); p != nil {
		return *p
	}
	return ""
}

// Translated returns the latest translation
func (s *TranscriptState) Translated() string {
	if p := s.translated.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *TranscriptState) setRaw(v string) {
	s.raw.Store(&v)
}

func (s *TranscriptState) setTranslated(v string) {
	s.translated.Store(&v)
}

func (s *TranscriptState) reset() {
	s.raw.Store(nil)
	s.translated.Store(nil)
}
