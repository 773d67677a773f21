package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		pin   string
		valid bool
	}{
		{"1234", true},
		{"123456", true},
		{"123", false},
		{"1234567", false},
		{"12a4", false},
		{"", false},
		{"12 34", false},
	}

	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			err := ValidatePIN(tt.pin)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPINFormat)
			}
		})
	}
}

func TestNewPINHasher(t *testing.T) {
	h, err := NewPINHasher("")
	require.NoError(t, err)
	assert.Equal(t, PINAlgorithmBcrypt, h.Algorithm())

	h, err = NewPINHasher("SHA256")
	require.NoError(t, err)
	assert.Equal(t, PINAlgorithmSHA256, h.Algorithm())

	_, err = NewPINHasher("md5")
	assert.ErrorIs(t, err, ErrUnsupportedPINHash)
}

func TestSHA256PINHasher(t *testing.T) {
	h := SHA256PINHasher{}

	digest, err := h.Hash("1234")
	require.NoError(t, err)
	assert.Equal(t, "03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4", digest)

	assert.NoError(t, h.Compare(digest, "1234"))
	assert.ErrorIs(t, h.Compare(digest, "4321"), ErrPINMismatch)
	assert.ErrorIs(t, h.Compare("", "1234"), ErrPINMismatch)
}

func TestBcryptPINHasher(t *testing.T) {
	h := BcryptPINHasher{Cost: 4}

	digest, err := h.Hash("1234")
	require.NoError(t, err)
	assert.NotEqual(t, "1234", digest)

	assert.NoError(t, h.Compare(digest, "1234"))
	assert.ErrorIs(t, h.Compare(digest, "9999"), ErrPINMismatch)
	assert.ErrorIs(t, h.Compare("", "1234"), ErrPINMismatch)
}

func TestBcryptPINHasher_AcceptsLegacyDigest(t *testing.T) {
	legacy, err := SHA256PINHasher{}.Hash("1234")
	require.NoError(t, err)

	h := BcryptPINHasher{Cost: 4}
	assert.NoError(t, h.Compare(legacy, "1234"))
	assert.ErrorIs(t, h.Compare(legacy, "0000"), ErrPINMismatch)
}
