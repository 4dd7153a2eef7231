package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// bluetoothBaseSuffix is the tail of the Bluetooth SIG base UUID (0000xxxx-0000-1000-8000-00805f9b34fb).
const bluetoothBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Strips a 0x prefix and shortens SIG base UUIDs to their 16-bit form.
// Returns an empty string when the input is not a valid 16-bit or 128-bit UUID.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")

	switch len(strings.ReplaceAll(s, "-", "")) {
	case 4:
		s = strings.ReplaceAll(s, "-", "")
		if !isHex(s) {
			return ""
		}
		return s
	case 32:
		u, err := uuid.Parse(s)
		if err != nil {
			// uuid.Parse rejects dash placements other than 8-4-4-4-12
			u, err = uuid.Parse(strings.ReplaceAll(s, "-", ""))
			if err != nil {
				return ""
			}
		}
		hex := strings.ReplaceAll(u.String(), "-", "")
		if strings.HasPrefix(hex, "0000") && strings.HasSuffix(hex, bluetoothBaseSuffix) {
			return hex[4:8]
		}
		return hex
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, u := range uuids {
		if u == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(u)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, u)
		}
		result = append(result, normalized)
	}
	return result, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
