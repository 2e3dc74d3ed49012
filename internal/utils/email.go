package utils

import (
	"strings"
)

// ExtractEmailAddress pulls the bare address out of a From header value,
// tolerating display-name forms like "Name <user@domain.com>".
func ExtractEmailAddress(fromHeader string) string {
	fromHeader = strings.TrimSpace(fromHeader)

	if strings.Contains(fromHeader, "<") && strings.Contains(fromHeader, ">") {
		startIdx := strings.LastIndex(fromHeader, "<") + 1
		endIdx := strings.LastIndex(fromHeader, ">")
		if startIdx > 0 && endIdx > startIdx {
			return strings.TrimSpace(fromHeader[startIdx:endIdx])
		}
	}

	return fromHeader
}

// NormalizeAddress lowercases and trims an address for comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func ExtractDomainFromEmail(email string) string {
	email = ExtractEmailAddress(email)

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.ToLower(parts[1])
}
