package config

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint returns "blake3:<hex>" for data.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])
}
