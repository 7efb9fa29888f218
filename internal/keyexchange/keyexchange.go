// Package keyexchange lets browsers send provider API keys encrypted against
// a key pair that lives only as long as the process.
package keyexchange

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"resumelens/internal/errors"
)

const (
	keyBits   = 2048
	Algorithm = "RSA-OAEP"
	Hash      = "SHA-256"
)

// KeyPair is an RSA key generated at startup. The private key never leaves
// the process.
type KeyPair struct {
	private   *rsa.PrivateKey
	publicPEM string
}

// Generate creates a fresh key pair.
func Generate() (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeKeyGeneration, "failed to generate RSA key pair", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeKeyGeneration, "failed to encode public key", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	return &KeyPair{private: private, publicPEM: string(block)}, nil
}

// PublicKeyPEM returns the PKIX public key in PEM form.
func (k *KeyPair) PublicKeyPEM() string {
	return k.publicPEM
}

// Decrypt decodes a base64 OAEP/SHA-256 ciphertext. An empty ciphertext
// yields an empty key, meaning the configured key applies.
func (k *KeyPair) Decrypt(ciphertext string) (string, error) {
	ciphertext = strings.TrimSpace(ciphertext)
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeDecryptFailed, "encrypted API key is not valid base64", err)
	}

	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.private, raw, nil)
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeDecryptFailed, "failed to decrypt API key", err)
	}

	key := strings.TrimSpace(string(plain))
	if key == "" {
		return "", errors.NewValidationError(errors.ErrCodeDecryptFailed, "decrypted API key is empty", nil)
	}
	return key, nil
}

// Encrypt is the client side of Decrypt, used by the CLI and tests.
func Encrypt(publicPEM, plaintext string) (string, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return "", fmt.Errorf("invalid public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("public key is not RSA")
	}

	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
