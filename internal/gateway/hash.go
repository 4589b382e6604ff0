package gateway

import (
	"crypto/sha1"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-1 digest of s.
//
// SHA-1 is what the gateway's signing scheme mandates on the wire; swapping
// in a stronger digest would simply never validate. Do not reuse this for
// anything other than gateway signatures.
func Hash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
