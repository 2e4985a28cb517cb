package util

import (
	"regexp"
	"strings"
)

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog removes control characters and newlines from user content
// before logging, so attacker-supplied values cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return controlChars.ReplaceAllString(s, " ")
}
