package winrm

import (
	"encoding/base64"
	"unicode/utf16"
)

// EncodePowershell encodes a script the way powershell's -encodedCommand
// flag expects it: UTF-16LE bytes, base64 encoded.
func EncodePowershell(script string) string {
	units := utf16.Encode([]rune(script))
	raw := make([]byte, 0, len(units)*2)
	for _, u := range units {
		raw = append(raw, byte(u), byte(u>>8))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// PowershellCommand returns the command line that runs script through
// powershell.
func PowershellCommand(script string) string {
	return "powershell.exe -encodedCommand " + EncodePowershell(script)
}
