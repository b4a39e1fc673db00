package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// secretBytes is the size of generated signing secrets (256 bits).
const secretBytes = 32

// GenerateSecret creates a cryptographically random signing secret:
// 32 random bytes, hex-encoded (64 characters).
func GenerateSecret() string {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		panic("dispatch: failed to generate random secret: " + err.Error())
	}
	return hex.EncodeToString(b)
}
