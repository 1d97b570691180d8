package telemetry

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

const (
	// Sanitisation thresholds
	minTokenLength    = 20  // Minimum length for alphanumeric strings to be considered tokens
	tokenPrefixLength = 8   // Length of prefix to show for redacted tokens
	maxStringLength   = 200 // Longer free-text values (questions) are truncated
)

// Sensitive patterns that should never appear in trace attributes
var (
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|secret|password|passwd|pwd|auth|authorization)[\s:=]+["']?([^\s"']+)`)

	sensitiveKeys = map[string]bool{
		"api_key":       true,
		"apikey":        true,
		"token":         true,
		"secret":        true,
		"password":      true,
		"auth":          true,
		"authorization": true,
		"access_token":  true,
		"credentials":   true,
	}
)

// SanitiseArguments returns the arguments as JSON with secrets redacted, the home directory
// of paths replaced by "~" and long strings truncated
func SanitiseArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	jsonBytes, err := json.Marshal(sanitiseMap(args))
	if err != nil {
		return "{\"error\": \"failed to serialise arguments\"}"
	}
	return string(jsonBytes)
}

func sanitiseMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	sanitised := make(map[string]any, len(m))
	for key, value := range m {
		keyLower := strings.ToLower(key)

		if isSensitiveKey(keyLower) {
			sanitised[key] = "[REDACTED]"
			continue
		}

		switch v := value.(type) {
		case map[string]any:
			sanitised[key] = sanitiseMap(v)
		case string:
			if keyLower == "path" {
				sanitised[key] = sanitisePath(v)
			} else {
				sanitised[key] = sanitiseString(v)
			}
		default:
			sanitised[key] = value
		}
	}
	return sanitised
}

func isSensitiveKey(key string) bool {
	return sensitiveKeys[key] || strings.Contains(key, "key") || strings.Contains(key, "token") ||
		strings.Contains(key, "secret") || strings.Contains(key, "password")
}

// sanitisePath hides the user's home directory
func sanitisePath(p string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == home {
		return "~"
	}
	if rest, ok := strings.CutPrefix(p, home+string(os.PathSeparator)); ok {
		return "~" + string(os.PathSeparator) + rest
	}
	return p
}

// sanitiseString removes sensitive patterns from strings
func sanitiseString(s string) string {
	if s == "" {
		return s
	}

	if apiKeyPattern.MatchString(s) {
		return apiKeyPattern.ReplaceAllString(s, "$1=[REDACTED]")
	}

	// Long alphanumeric strings might be tokens, show only a prefix
	if len(s) > minTokenLength && isAlphanumeric(s) {
		if len(s) > tokenPrefixLength {
			return s[:4] + "..." + "[REDACTED]"
		}
		return "[REDACTED]"
	}

	return TruncateString(s, maxStringLength)
}

// isAlphanumeric checks if a string contains only alphanumeric characters and common token characters
func isAlphanumeric(s string) bool {
	for _, char := range s {
		isValid := (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' || char == '.'
		if !isValid {
			return false
		}
	}
	return true
}

// TruncateString truncates a string to a maximum length with ellipsis
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
