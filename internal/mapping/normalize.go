package mapping

import (
	"fmt"
	"strings"

	"github.com/dikshant-ux/vellkopoint/internal/source"
)

const (
	OpLowercase = "lowercase"
	OpUppercase = "uppercase"
	OpTrim      = "trim"
)

// Normalize applies per-field normalization rules and returns a new
// map; the input is never mutated. Unknown operations and absent fields
// are no-ops, and every operation is idempotent, so reapplying the same
// rules is a fixed point.
func Normalize(data map[string]interface{}, rules []source.NormalizationRule) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for k, v := range data {
		result[k] = v
	}
	if len(rules) == 0 {
		return result
	}

	for _, rule := range rules {
		val, ok := result[rule.Field]
		if !ok || val == nil {
			continue
		}

		switch rule.Operation {
		case OpLowercase:
			result[rule.Field] = strings.ToLower(asString(val))
		case OpUppercase:
			result[rule.Field] = strings.ToUpper(asString(val))
		case OpTrim:
			result[rule.Field] = strings.TrimSpace(asString(val))
		}
	}
	return result
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
