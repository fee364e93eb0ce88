package credential

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey_ExactLength(t *testing.T) {
	for _, length := range []int{16, 24, 32, 64} {
		key, err := generateAPIKey(length)
		require.NoError(t, err)
		require.Len(t, key, length)
	}
}

func TestGenerateAPIKey_URLSafeAlphabet(t *testing.T) {
	key, err := generateAPIKey(32)
	require.NoError(t, err)
	for _, r := range key {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_') {
			t.Fatalf("generateAPIKey produced a non-URL-safe character: %q in %q", r, key)
		}
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := generateAPIKey(32)
		require.NoError(t, err)
		require.False(t, seen[key], "generateAPIKey produced a duplicate")
		seen[key] = true
	}
}
