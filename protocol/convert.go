package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

var validHex = regexp.MustCompile(`^[0-9a-f]+$`)

// NormalizeUID converts a UID in any common notation to the reader format,
// lowercase dash-separated hex.
// Supports: "04:AB:CD:EF", "04ABCDEF", "04 AB CD EF", "04-ab-cd-ef"
func NormalizeUID(uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("empty UID")
	}

	cleaned := strings.NewReplacer(":", "", " ", "", "-", "").Replace(uid)
	cleaned = strings.ToLower(cleaned)

	if !validHex.MatchString(cleaned) {
		return "", fmt.Errorf("UID contains invalid characters: %s", uid)
	}
	if len(cleaned)%2 != 0 {
		return "", fmt.Errorf("UID has odd number of hex characters: %s", uid)
	}

	var result strings.Builder
	for i := 0; i < len(cleaned); i += 2 {
		if i > 0 {
			result.WriteByte('-')
		}
		result.WriteString(cleaned[i : i+2])
	}
	return result.String(), nil
}
