package winrm

import (
	"encoding/base64"
	"strings"
)

// utf8BOM is the byte order mark Windows prepends to some stream writes.
const utf8BOM = "\uFEFF"

// Decoder turns one raw chunk payload into output text. The boolean reports
// whether the chunk carries anything: decode failures and empty payloads
// read as absent, and the caller drops the chunk.
type Decoder interface {
	Decode(raw string) (string, bool)
}

// OutputDecoder is the protocol decoder: base64, then UTF-8 cleanup. The
// endpoint can split multibyte sequences across chunk boundaries and
// prepends a byte order mark to some writes; invalid bytes are replaced
// with the Unicode replacement character and the mark is removed.
type OutputDecoder struct{}

func (OutputDecoder) Decode(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", false
	}

	text := strings.ToValidUTF8(string(decoded), "�")
	text = strings.ReplaceAll(text, utf8BOM, "")
	if text == "" {
		return "", false
	}
	return text, true
}
