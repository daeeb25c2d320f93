package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AnonymousPrefix marks customer ids derived server-side rather than assigned
// by the SDK. The prefix keeps the two id spaces visually distinct in the
// journey explorer.
const AnonymousPrefix = "anon_"

// BuildCustomerSignature creates a stable anonymous customer identifier for
// touch events that arrive without an SDK-assigned customer id. Unlike a
// per-day visitor hash, the signature must stay stable across days so a
// journey that spans a week still lands on one customer. IP addresses are
// never stored - only hashed with the instance private key.
func BuildCustomerSignature(site, ipAddress, userAgent, salt string) string {
	data := fmt.Sprintf("%s.%s.%s.%s", salt, site, ipAddress, userAgent)
	hash := sha256.Sum256([]byte(data))
	return AnonymousPrefix + hex.EncodeToString(hash[:])
}
