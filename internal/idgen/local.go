package idgen

import (
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	localSuffixSize     = 9
	localSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// LocalID returns a client correlation id: the send time in unix
// milliseconds followed by a short random suffix. Uniqueness is only needed
// within one session.
func LocalID(now time.Time) string {
	suffix, err := gonanoid.Generate(localSuffixAlphabet, localSuffixSize)
	if err != nil {
		// crypto/rand failed; the timestamp alone still correlates within a session.
		suffix = strconv.FormatInt(now.UnixNano()%1_000_000_000, 36)
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

// IsNumeric reports whether id looks like a server-assigned id.
func IsNumeric(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
