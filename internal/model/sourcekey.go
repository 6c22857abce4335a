package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// sourceKeyBytes is the digest prefix kept for a source key (128 bits).
const sourceKeyBytes = 16

// SourceKey fingerprints a record by citation, web page URL and title.
// Missing fields are passed as empty strings.
func SourceKey(citation, webPageURL, title string) string {
	sum := sha256.Sum256([]byte(citation + "|" + webPageURL + "|" + title))
	return hex.EncodeToString(sum[:sourceKeyBytes])
}

// runIDLayout is the capture timestamp layout before separator replacement.
const runIDLayout = "2006-01-02T15:04:05.000Z"

// RunIDFromTime derives the run id from a capture timestamp, so that
// importing the same capture twice resolves to the same run directory.
func RunIDFromTime(t time.Time) string {
	s := t.UTC().Format(runIDLayout)
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}
