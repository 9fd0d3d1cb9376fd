package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// LocalIDPrefix marks message ids generated client-side before the server
// has assigned a real one.
const LocalIDPrefix = "local_"

// NewID returns a best-effort unique identifier.
func NewID() string {
	const size = 12

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

// NewLocalMessageID returns a placeholder message id for an optimistic
// local echo.
func NewLocalMessageID() string {
	return LocalIDPrefix + NewID()
}

// IsLocalMessageID reports whether id is a client-generated placeholder.
func IsLocalMessageID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
