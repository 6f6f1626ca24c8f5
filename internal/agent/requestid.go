package agent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// generateRequestID returns a short id correlating one run's log lines,
// usage records, and published events.
func generateRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("r_%08x", time.Now().UnixNano()&0xffffffff)
	}
	return "r_" + hex.EncodeToString(b)
}
