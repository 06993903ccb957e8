// Package idempotency derives the key that collapses repeated checkout
// attempts into one order.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
)

const keyPrefix = "chk_"

// BuildKey hashes the event, the normalized buyer email, the sorted serialized
// lines and the attempt's epoch second. Line order does not affect the key.
func BuildKey(eventID, email string, lines []cart.FinalizeLine, at time.Time) string {
	serialized := make([]string, 0, len(lines))
	for _, l := range lines {
		serialized = append(serialized, l.Serialize())
	}
	sort.Strings(serialized)

	parts := []string{
		strings.TrimSpace(eventID),
		strings.ToLower(strings.TrimSpace(email)),
		strings.Join(serialized, ","),
		strconv.FormatInt(at.Unix(), 10),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Valid reports whether key has the shape produced by BuildKey.
func Valid(key string) bool {
	if !strings.HasPrefix(key, keyPrefix) {
		return false
	}
	raw := strings.TrimPrefix(key, keyPrefix)
	if len(raw) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}
