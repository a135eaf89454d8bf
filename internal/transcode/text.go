package transcode

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// sanitizeOverlayText prepares user text for a drawtext filter argument.
// Backslashes and quote characters are stripped rather than escaped:
// drawtext quoting rules differ across ffmpeg versions and a dropped
// character is safer than a broken filter graph. Colons separate filter
// options, so they are escaped. Text is NFC-normalized so composed and
// decomposed accents render identically.
func sanitizeOverlayText(text string) string {
	cleaned := norm.NFC.String(text)
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '\\', '\'', '"', '\n', '\r':
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.ReplaceAll(cleaned, ":", "\\:")
	return strings.TrimSpace(cleaned)
}
