package dedupe

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hasher builds the cache key for a duplicate check from the source id
// and the configured field values.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// ComputeHash produces a deterministic digest over the source id and the
// field values in configured order. Missing fields hash as empty.
func (h *Hasher) ComputeHash(sourceID string, data map[string]interface{}, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no fields specified for hashing")
	}

	var builder strings.Builder
	builder.WriteString(sourceID)
	builder.WriteString("|")
	for _, field := range fields {
		val, exists := data[field]
		if !exists {
			val = ""
		}
		builder.WriteString(fmt.Sprintf("%v|", val))
	}

	input := builder.String()

	switch h.algorithm {
	case "sha256":
		sum := sha256.Sum256([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	case "md5":
		sum := md5.Sum([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	default:
		sum := md5.Sum([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	}
}
