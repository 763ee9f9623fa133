package logging

import (
	"strings"
)

// RedactedValue replaces secret values in log output.
const RedactedValue = "******"

// secretKeys are property names whose values never reach the log.
var secretKeys = map[string]bool{
	"password": true,
	"authpwd":  true,
}

// IsSecretKey reports whether values stored under key must not be logged.
func IsSecretKey(key string) bool {
	return secretKeys[strings.ToLower(key)]
}

// FormatProperties renders an alternating key/value list as "k=v" pairs
// with secret values masked. A trailing key without value is rendered
// as "k=".
func FormatProperties(kv []string) string {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteString(", ")
		}
		key := kv[i]
		value := ""
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		if IsSecretKey(key) && value != "" {
			value = RedactedValue
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String()
}
