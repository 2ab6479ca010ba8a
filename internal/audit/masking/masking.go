package masking

import (
	"strings"

	"github.com/smallbiznis/lunara/internal/config"
)

const (
	maskToken = "****"

	// minRevealLength is the shortest secret whose last four characters are kept.
	minRevealLength = 12
)

// MaskSecret redacts a secret. Long values keep their last four characters so
// operators can tell two rotated credentials apart in the audit trail.
func MaskSecret(value string) string {
	trimmed := []rune(strings.TrimSpace(value))
	if len(trimmed) == 0 {
		return ""
	}
	if len(trimmed) < minRevealLength {
		return maskToken
	}
	return maskToken + string(trimmed[len(trimmed)-4:])
}

// Redact returns a copy of metadata where every value stored under a key the
// policy treats as credential material is masked. Nested objects and lists are
// walked, so a secret inside a data source config diff is caught as well.
// Keys are trimmed and blank keys dropped.
func Redact(policy config.CredentialPolicy, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if policy.IsCredentialKey(key) {
			out[key] = maskAll(value)
			continue
		}
		out[key] = redactValue(policy, value)
	}
	return out
}

func redactValue(policy config.CredentialPolicy, value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return Redact(policy, cast)
	case []any:
		items := make([]any, 0, len(cast))
		for _, item := range cast {
			items = append(items, redactValue(policy, item))
		}
		return items
	default:
		return value
	}
}

// maskAll masks every leaf below a credential key.
func maskAll(value any) any {
	switch cast := value.(type) {
	case nil:
		return nil
	case string:
		return MaskSecret(cast)
	case map[string]any:
		out := make(map[string]any, len(cast))
		for key, item := range cast {
			out[key] = maskAll(item)
		}
		return out
	case []any:
		items := make([]any, 0, len(cast))
		for _, item := range cast {
			items = append(items, maskAll(item))
		}
		return items
	default:
		return maskToken
	}
}
