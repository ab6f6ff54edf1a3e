package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(signature|mint|action|amount)
// amount must be in canonical decimal form so equal values hash equally.
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	signature string,
	mint string,
	action string,
	amount string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		signature,
		mint,
		action,
		amount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
