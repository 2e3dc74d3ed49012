package imap

import (
	"strings"

	"github.com/docrelay/docrelay/internal/utils"
)

// senderAllowed reports whether the bare sender address matches any whitelist
// entry. The address is extracted from the header value first, so a display
// name can never satisfy the match. Matching is a case-insensitive substring
// test against the extracted address, so an entry can be a full address, a
// domain, or an address fragment. An empty whitelist rejects everything.
func senderAllowed(sender string, allowed []string) bool {
	senderClean := strings.ToLower(strings.TrimSpace(utils.ExtractEmailAddress(sender)))
	if senderClean == "" {
		return false
	}

	for _, entry := range allowed {
		entryClean := strings.ToLower(strings.TrimSpace(entry))
		if entryClean == "" {
			continue
		}
		if strings.Contains(senderClean, entryClean) {
			return true
		}
	}

	return false
}
