package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Length of a derived fingerprint in characters.
const Length = 32

// Signals are the machine identifiers a fingerprint is derived from.
type Signals struct {
	CPUID      string `json:"cpu_id"`
	DiskSerial string `json:"disk_serial"`
	Hostname   string `json:"hostname"`
	Username   string `json:"username"`
}

// HasHardware reports whether both hardware identifiers were readable.
func (s Signals) HasHardware() bool {
	return strings.TrimSpace(s.CPUID) != "" && strings.TrimSpace(s.DiskSerial) != ""
}

// Material is the string that gets hashed. Without hardware identifiers it
// falls back to hostname + current user.
func (s Signals) Material() string {
	if s.HasHardware() {
		return strings.TrimSpace(s.CPUID) + strings.TrimSpace(s.DiskSerial) + strings.TrimSpace(s.Hostname)
	}
	return strings.TrimSpace(s.Hostname) + strings.TrimSpace(s.Username)
}

// Derive hashes the signals with SHA-256, base64-encodes the digest and keeps
// the first 32 characters. It is deterministic for equal input.
func Derive(s Signals) string {
	sum := sha256.Sum256([]byte(s.Material()))
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	return encoded[:Length]
}
