package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit UUID lowercase",
			input:    "2a19",
			expected: "2a19",
		},
		{
			name:     "16-bit UUID uppercase with 0x prefix",
			input:    "0X2A19",
			expected: "2a19",
		},
		{
			name:     "Full Bluetooth SIG UUID shortens to 16-bit form",
			input:    "0000180F-0000-1000-8000-00805F9B34FB",
			expected: "180f",
		},
		{
			name:     "Full Bluetooth SIG UUID with irregular dashes",
			input:    "0000-2902-0000-1000-8000-00805f9b34fb",
			expected: "2902",
		},
		{
			name:     "Maze service UUID stays 128-bit",
			input:    "4fafc201-1fb5-459e-8fcc-c5c9c331914b",
			expected: "4fafc2011fb5459e8fccc5c9c331914b",
		},
		{
			name:     "Maze timer UUID without dashes",
			input:    "BEB5483E36E14688B7F5EA07361B26A9",
			expected: "beb5483e36e14688b7f5ea07361b26a9",
		},
		{
			name:     "Wrong prefix is not shortened",
			input:    "AA002902-0000-1000-8000-00805f9b34fb",
			expected: "aa00290200001000800000805f9b34fb",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "32-bit form is rejected",
			input:    "00002902",
			expected: "",
		},
		{
			name:     "Non-hex 16-bit form is rejected",
			input:    "zz19",
			expected: "",
		},
		{
			name:     "Too long",
			input:    "0000290200001000800000805f9b34fb00",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	input := []string{
		"2902",
		"0x180d",
		"beb5483e-36e1-4688-b7f5-ea07361b26a8",
	}

	expected := []string{
		"2902",
		"180d",
		"beb5483e36e14688b7f5ea07361b26a8",
	}

	assert.Equal(t, expected, NormalizeUUIDs(input))
}

func TestValidateUUID(t *testing.T) {
	t.Run("normalizes valid UUIDs", func(t *testing.T) {
		got, err := ValidateUUID("180F", "beb5483e-36e1-4688-b7f5-ea07361b26aa")
		require.NoError(t, err)
		assert.Equal(t, []string{"180f", "beb5483e36e14688b7f5ea07361b26aa"}, got)
	})

	t.Run("rejects empty input list", func(t *testing.T) {
		_, err := ValidateUUID()
		assert.EqualError(t, err, "at least one UUID is required")
	})

	t.Run("rejects empty entry", func(t *testing.T) {
		_, err := ValidateUUID("180f", "")
		assert.EqualError(t, err, "UUID at index 1 cannot be empty")
	})

	t.Run("rejects malformed entry", func(t *testing.T) {
		_, err := ValidateUUID("not-a-uuid")
		assert.EqualError(t, err, "invalid UUID format at index 0: not-a-uuid")
	})
}
