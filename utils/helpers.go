package utils

import (
	"strings"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

// ExtractCallerPhone pulls the caller number out of the From header.
func ExtractCallerPhone(headers []sip.Header) string {
	for _, header := range headers {
		if header.Name() == "From" {
			from := header.Value()
			if after, ok := strings.CutPrefix(from, "<sip:"); ok {
				parts := strings.Split(strings.TrimSuffix(after, ">"), "@")
				return parts[0]
			}
		}
	}
	return "unknown"
}

// ExtractCalledNumber pulls the dialed number from the INVITE request URI.
func ExtractCalledNumber(req *sip.Request) string {
	if req == nil {
		return "unknown"
	}
	if user := req.Recipient.User; user != "" {
		return user
	}
	return "unknown"
}

// NewSessionID returns a fresh call session identifier.
func NewSessionID() string {
	return "call-" + uuid.NewString()
}
