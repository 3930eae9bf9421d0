package language

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

type entry struct {
	name      string // Display name shown in the UI
	code      string // BCP-47 code passed to the speech service
	usesSpace bool   // Words are separated by spaces
}

var languages = []entry{
	{"Arabic (Saudi Arabia)", "ar-SA", true},
	{"Chinese (Simplified)", "zh-CN", false},
	{"Chinese (Traditional)", "zh-TW", false},
	{"Dutch (Netherlands)", "nl-NL", true},
	{"English (United Kingdom)", "en-GB", true},
	{"English (United States)", "en-US", true},
	{"French (Canada)", "fr-CA", true},
	{"French (France)", "fr-FR", true},
	{"German (Germany)", "de-DE", true},
	{"Hindi (India)", "hi-IN", true},
	{"Italian (Italy)", "it-IT", true},
	{"Japanese (Japan)", "ja-JP", false},
	{"Korean (South Korea)", "ko-KR", true},
	{"Polish (Poland)", "pl-PL", true},
	{"Portuguese (Brazil)", "pt-BR", true},
	{"Portuguese (Portugal)", "pt-PT", true},
	{"Russian (Russia)", "ru-RU", true},
	{"Spanish (Mexico)", "es-MX", true},
	{"Spanish (Spain)", "es-ES", true},
	{"Thai (Thailand)", "th-TH", false},
	{"Turkish (Turkey)", "tr-TR", true},
	{"Vietnamese (Vietnam)", "vi-VN", true},
}

// Default languages for a new session.
const (
	DefaultAudio       = "French (France)"
	DefaultTranslation = "English (United States)"
)

var (
	byName map[string]*entry
	byCode map[string]*entry
)

func init() {
	byName = make(map[string]*entry, len(languages))
	byCode = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byName[strings.ToLower(e.name)] = e
		byCode[strings.ToLower(e.code)] = e
	}
}

// Language describes a supported language.
type Language struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	UsesSpace bool   `json:"uses_space"`
}

// Base returns the ISO 639-1 base language of a BCP-47 code ("fr" for
// "fr-FR"), or "" when the code does not parse.
func Base(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// Lookup resolves a display name ("French (France)") or a BCP-47 code
// ("fr-FR", "fr_fr") to a supported language.
func Lookup(nameOrCode string) (Language, bool) {
	key := strings.ToLower(strings.TrimSpace(nameOrCode))
	if key == "" {
		return Language{}, false
	}
	if e, ok := byName[key]; ok {
		return e.toLanguage(), true
	}
	key = strings.ReplaceAll(key, "_", "-")
	if e, ok := byCode[key]; ok {
		return e.toLanguage(), true
	}
	return Language{}, false
}

// UsesSpace reports whether the language separates words with spaces.
// Unknown languages are treated as space separated.
func UsesSpace(nameOrCode string) bool {
	l, ok := Lookup(nameOrCode)
	if !ok {
		return true
	}
	return l.UsesSpace
}

// All returns every supported language sorted by display name.
func All() []Language {
	out := make([]Language, 0, len(languages))
	for i := range languages {
		out = append(out, languages[i].toLanguage())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *entry) toLanguage() Language {
	return Language{Name: e.name, Code: e.code, UsesSpace: e.usesSpace}
}
