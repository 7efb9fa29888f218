package keyexchange

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumelens/internal/errors"
)

func TestRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(kp.PublicKeyPEM(), "-----BEGIN PUBLIC KEY-----"))

	ciphertext, err := Encrypt(kp.PublicKeyPEM(), "sk-deepseek-123")
	require.NoError(t, err)

	got, err := kp.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-deepseek-123", got)
}

func TestDecrypt(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	other, err := Generate()
	require.NoError(t, err)
	foreign, err := Encrypt(other.PublicKeyPEM(), "sk-other")
	require.NoError(t, err)
	blank, err := Encrypt(kp.PublicKeyPEM(), "   ")
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext string
		want       string
		wantErr    bool
	}{
		{"empty means configured key", "", "", false},
		{"not base64", "%%%", "", true},
		{"wrong key pair", foreign, "", true},
		{"garbage bytes", base64.StdEncoding.EncodeToString([]byte("garbage")), "", true},
		{"blank plaintext", blank, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := kp.Decrypt(tt.ciphertext)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeDecryptFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncryptRejectsBadPEM(t *testing.T) {
	_, err := Encrypt("not a key", "x")
	assert.Error(t, err)
}
