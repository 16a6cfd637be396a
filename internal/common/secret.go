package common

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecretsEqual compares two shared secrets in constant time. Both sides are hashed first so
// the comparison does not leak the expected secret's length either.
func SecretsEqual(provided, expected string) bool {
	p := sha256.Sum256([]byte(provided))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}
