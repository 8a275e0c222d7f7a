package identity

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"Jiří", "Jiri"},
		{"Łukasz", "Łukasz"}, // Ł is not a combining mark
		{"Renée", "Renee"},
		{"João", "Joao"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := RemoveDiacritics(tc.input); got != tc.expected {
			t.Errorf("RemoveDiacritics(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"Jane Doe", "jane doe"},
		{"Jean-Claude", "jean claude"},
		{"Renée DUPONT", "renee dupont"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.input); got != tc.expected {
			t.Errorf("Normalize(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("Jane_Doe"); got != "Jane Doe" {
		t.Errorf("DisplayName = %q, expected 'Jane Doe'", got)
	}
}
