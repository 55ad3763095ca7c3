package winrm

import "testing"

func TestOutputDecoder_Decode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain text", "SGVsbG8=", "Hello", true},
		{"empty payload", "", "", false},
		{"invalid base64", "%%not-base64%%", "", false},
		{"byte order mark stripped", "77u/aGk=", "hi", true},
		{"byte order mark alone", "77u/", "", false},
		{"invalid utf-8 replaced", "//5B", "�A", true},
		{"multibyte rune split at chunk boundary", "QWLD", "Ab�", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OutputDecoder{}.Decode(tt.raw)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Decode(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}
