package services

import (
	"regexp"
	"strings"
)

var (
	sourceMarkers = regexp.MustCompile(`【.*?】`)
	doubleStars   = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// NormalizeReply rewrites generator output into WhatsApp-friendly text:
// citation markers like 【4:2†source】 are stripped and markdown bold
// (**text**) becomes WhatsApp bold (*text*).
func NormalizeReply(text string) string {
	text = sourceMarkers.ReplaceAllString(text, "")
	text = doubleStars.ReplaceAllString(text, "*$1*")
	return strings.TrimSpace(text)
}
