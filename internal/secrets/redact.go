// Package secrets provides the pluggable credential-loading seam and the
// field redactor used by the logger before any structured field reaches
// output.
package secrets

import "strings"

// sensitiveKeys are substrings matched case-insensitively against a field
// name; a match replaces the value with a redacted form before logging.
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"apikey",
	"private_key",
	"privatekey",
	"bearer",
	"authorization",
	"credential",
}

// Redact returns a copy of fields with sensitive values masked. Non-string
// values whose key matches are replaced with "***REDACTED***" since they
// cannot be safely truncated; string values longer than 8 characters are
// reduced to "first4…last4".
func Redact(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			out[k] = maskValue(v)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func maskValue(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return "***REDACTED***"
	}
	if len(s) <= 8 {
		return "***REDACTED***"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
