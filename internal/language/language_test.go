package language

import "testing"

func TestToISO3(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "eng"},
		{"id", "ind"},
		{"Indonesian", "ind"},
		{"ja", "jpn"},
		{" JAPANESE ", "jpn"},
		{"eng", "eng"},
		{"", "und"},
		{"klingon-ish", "und"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ToISO3(tt.in); got != tt.want {
				t.Errorf("ToISO3(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"id", "Indonesian"},
		{"english", "English"},
		{"de", "German"},
		{"", "Unknown"},
		{"not a language", "not a language"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := DisplayName(tt.in); got != tt.want {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal("en", "English") {
		t.Error("en and English should be equal")
	}
	if !Equal("eng", "en-US") {
		t.Error("eng and en-US share a base language")
	}
	if Equal("en", "id") {
		t.Error("en and id differ")
	}
}

func TestDetect(t *testing.T) {
	texts := []string{
		"Where are you going tonight with all of those people?",
		"I think we should leave before the storm gets here.",
		"Nobody told me the meeting was moved to the morning.",
		"ok",
	}
	if got := Detect(texts); got != "en" {
		t.Errorf("Detect() = %q, want en", got)
	}
	if got := Detect([]string{"", "hi"}); got != "" {
		t.Errorf("Detect() on short input = %q, want empty", got)
	}
}
