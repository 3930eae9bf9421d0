package language

import (
	"sort"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		input     string
		wantCode  string
		wantFound bool
	}{
		{"French (France)", "fr-FR", true},
		{"french (france)", "fr-FR", true},
		{"fr-FR", "fr-FR", true},
		{"FR_fr", "fr-FR", true},
		{" ja-JP ", "ja-JP", true},
		{"Klingon", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := Lookup(tt.input)
			if ok != tt.wantFound {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.input, ok, tt.wantFound)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Lookup(%q).Code = %q, want %q", tt.input, got.Code, tt.wantCode)
			}
		})
	}
}

func TestBase(t *testing.T) {
	tests := map[string]string{
		"fr-FR": "fr",
		"en-US": "en",
		"zh-TW": "zh",
		"pt-BR": "pt",
		"ja":    "ja",
		"":      "",
	}
	for code, want := range tests {
		if got := Base(code); got != want {
			t.Errorf("Base(%q) = %q, want %q", code, got, want)
		}
	}
	for _, l := range All() {
		if Base(l.Code) == "" {
			t.Errorf("Base(%q) is empty", l.Code)
		}
	}
}

func TestUsesSpace(t *testing.T) {
	if !UsesSpace("English (United States)") {
		t.Error("English should use spaces")
	}
	if UsesSpace("ja-JP") {
		t.Error("Japanese should not use spaces")
	}
	if UsesSpace("Chinese (Simplified)") {
		t.Error("Chinese should not use spaces")
	}
	if !UsesSpace("unknown") {
		t.Error("unknown languages default to spaced")
	}
}

func TestDefaultsAreSupported(t *testing.T) {
	for _, name := range []string{DefaultAudio, DefaultTranslation} {
		if _, ok := Lookup(name); !ok {
			t.Errorf("default language %q is not in the table", name)
		}
	}
}

func TestAllSorted(t *testing.T) {
	all := All()
	if len(all) != len(languages) {
		t.Fatalf("All() returned %d, want %d", len(all), len(languages))
	}
	if !sort.SliceIsSorted(all, func(i, j int) bool { return all[i].Name < all[j].Name }) {
		t.Error("All() is not sorted by name")
	}
}
