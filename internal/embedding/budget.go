package embedding

import (
	"strings"
	"unicode/utf8"
)

// CharsPerToken is the rough characters-per-token ratio used for estimates.
const CharsPerToken = 4

const truncateRatio = 0.8

// EstimateTokens returns a cheap token estimate: one token per four runes.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

// TruncateToTokenLimit returns text unchanged if its estimate fits within limit.
// Otherwise it cuts to 80% of the limit in runes and backs off to the last sentence
// or paragraph boundary when that boundary lies in the second half of the cut.
// The result is always a prefix of text.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 || EstimateTokens(text) <= limit {
		return text
	}
	runes := []rune(text)
	target := int(float64(limit*CharsPerToken) * truncateRatio)
	if target > len(runes) {
		target = len(runes)
	}
	cut := string(runes[:target])

	boundary := strings.LastIndex(cut, ".")
	if p := strings.LastIndex(cut, "\n\n"); p > boundary {
		boundary = p
	}
	if boundary < 0 {
		return cut
	}
	// boundary is a byte offset; compare in runes
	if pos := utf8.RuneCountInString(cut[:boundary]); float64(pos) > float64(target)*0.5 {
		return cut[:boundary+1]
	}
	return cut
}
