// Package security masks credentials before they reach logs or the terminal.
package security

import (
	"regexp"
	"strings"
)

// sensitiveFields contains field names whose values are always masked.
var sensitiveFields = map[string]bool{
	"api_key":        true,
	"apikey":         true,
	"api_secret":     true,
	"secret":         true,
	"password":       true,
	"token":          true,
	"access_token":   true,
	"auth_token":     true,
	"price_feed_key": true,
	"postgres_url":   true,
	"webhook_url":    true,
}

var (
	// key=value and key: value pairs. The value stops at whitespace, quotes,
	// '&' and ',' so query strings keep their other parameters.
	keyValuePattern = regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|token|password)([=:]\s*)["']?([^\s"'&,]+)["']?`)
	bearerPattern   = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9_\-\.=~+/]+)`)
	// user:password@ inside a URL.
	userinfoPattern = regexp.MustCompile(`(://[^:/@\s]+:)([^@\s]+)(@)`)
)

// MaskCredential keeps the first and last four characters of long values and
// masks the rest.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// IsSensitiveField reports whether a field name holds a credential.
func IsSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

// MaskSecrets masks URL passwords, bearer tokens and key=value credentials
// found anywhere in input.
func MaskSecrets(input string) string {
	result := userinfoPattern.ReplaceAllString(input, "${1}***${3}")
	result = bearerPattern.ReplaceAllStringFunc(result, func(match string) string {
		m := bearerPattern.FindStringSubmatch(match)
		return m[1] + MaskCredential(m[2])
	})
	return keyValuePattern.ReplaceAllStringFunc(result, func(match string) string {
		m := keyValuePattern.FindStringSubmatch(match)
		return m[1] + m[2] + MaskCredential(m[3])
	})
}

// MaskField masks value when field is sensitive and scrubs embedded secrets
// otherwise.
func MaskField(field, value string) string {
	if IsSensitiveField(field) {
		if strings.Contains(value, "://") {
			return MaskSecrets(value)
		}
		return MaskCredential(value)
	}
	return MaskSecrets(value)
}
