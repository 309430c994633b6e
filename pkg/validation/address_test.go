package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"wrapped SOL mint", "So11111111111111111111111111111111111111112", false},
		{"raydium fee account", "7YttLkHDoNj9wyDur5pM1ejNaAvT9X4eqaYcHQqtj2G5", false},
		{"system program", "11111111111111111111111111111111", false},
		{"empty", "", true},
		{"too short", "So1111", true},
		{"invalid alphabet", "0OIl1111111111111111111111111111111111111112", true},
		{"hex address", "0x4b40e9014b40e9014b40e9014b40e9014b40e901", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAndNormalizeAddress(t *testing.T) {
	addr, err := ValidateAndNormalizeAddress("  So11111111111111111111111111111111111111112\n")
	require.NoError(t, err)
	assert.Equal(t, "So11111111111111111111111111111111111111112", addr)

	_, err = ValidateAndNormalizeAddress("   ")
	assert.Error(t, err)
}
