package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder written in place of sensitive values.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"kind":      {},
	"component": {},
	"chain_id":  {},
	"data_dir":  {},
	"rpc_addr":  {},
	"exchange":  {},
}

func allowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func maskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute that redacts value unless key is
// allowlisted. Secrets such as RPC tokens and broker URLs go through here.
func MaskField(key, value string) slog.Attr {
	if allowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, maskValue(value))
}
