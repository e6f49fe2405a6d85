package services

import (
	"regexp"
	"strings"
)

var (
	localePrefix = regexp.MustCompile(`^[a-z]{2,3}-[A-Z]{2}-`)
	tierMarkers  = strings.NewReplacer(
		"Chirp3-HD-", "Chirp3 HD ",
		"Chirp-HD-", "Chirp HD ",
		"Neural2-", "Neural ",
		"Neural-", "Neural ",
		"Studio-", "Studio ",
		"Wavenet-", "Wavenet ",
		"Standard-", "Standard ",
		"Polyglot-", "Polyglot ",
		"News-", "News ",
	)
)

// FormatVoiceName turns a provider voice id such as "en-US-Neural2-A" into a
// display label ("Neural A"). Presentation only; never parse the result.
func FormatVoiceName(voiceID string) string {
	name := localePrefix.ReplaceAllString(voiceID, "")
	name = tierMarkers.Replace(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
