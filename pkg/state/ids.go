package state

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// timestampToken renders t in ISO 8601 with ':' and '.' replaced by '-'
// so the result is filesystem- and URL-safe
func timestampToken(t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05.000Z")
	iso = strings.ReplaceAll(iso, ":", "-")
	return strings.ReplaceAll(iso, ".", "-")
}

// randomHex returns n cryptographically random bytes as lowercase hex
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; there is
		// no meaningful fallback for identifiers that must be unique
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

// NewOrchestrationID generates a unique run identifier:
// orchestration-<timestamp>-<12 hex>
func NewOrchestrationID() string {
	return "orchestration-" + timestampToken(time.Now()) + "-" + randomHex(6)
}

// NewDeploymentID generates a per-domain deployment identifier:
// deploy-<domain>-<timestamp>-<8 hex>
func NewDeploymentID(domain string) string {
	return "deploy-" + domain + "-" + timestampToken(time.Now()) + "-" + randomHex(4)
}
