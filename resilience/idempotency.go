package resilience

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// IdempotencyKey derives a stable key for a write so a server can
// deduplicate replays. The timestamp is coarsened to the minute, so an
// enqueue and its replay within the same minute share a key while
// unrelated writes to the same endpoint do not collide.
func IdempotencyKey(endpoint string, payload []byte, at time.Time) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write(payload)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UTC().Truncate(time.Minute).Unix()))
	h.Write(ts[:])

	return hex.EncodeToString(h.Sum(nil))
}
