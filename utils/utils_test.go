package utils

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	tests := map[string]uint64{
		"":             0,
		"   ":          0,
		"42":           42,
		" 7 ":          7,
		"12.6":         13,
		"1e3":          1000,
		"not-a-number": 0,
		"-5":           0,
		"NaN":          0,
		"+Inf":         0,
		"1e40":         math.MaxUint64,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseMetric(in), "input %q", in)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", FirstNonEmpty())
}

func TestJWTRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := GenerateJWT(secret, "42", "ops@example.com", "admin", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateJWT(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "ops@example.com", claims.Email)

	_, err = ValidateJWT([]byte("other"), tok)
	assert.Error(t, err)

	_, err = ValidateJWT(nil, tok)
	assert.Error(t, err)

	expired, err := GenerateJWT(secret, "42", "ops@example.com", "admin", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(secret, expired)
	assert.Error(t, err)
}
