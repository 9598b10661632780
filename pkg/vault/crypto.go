package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// EncryptedPayload carries one AES-256-GCM encryption, each part base64.
type EncryptedPayload struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// DeriveWorkspaceKey derives the per-workspace encryption key from the
// master key: HKDF-SHA256 with salt SHA256(workspaceID) and the workspace
// id as info.
func DeriveWorkspaceKey(masterKey []byte, workspaceID string) ([]byte, error) {
	if len(masterKey) != keySize {
		return nil, errors.New("vault: master key must be 32 bytes")
	}
	salt := sha256.Sum256([]byte(workspaceID))
	r := hkdf.New(sha256.New, masterKey, salt[:], []byte(workspaceID))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh 12-byte IV and
// verifies the result decrypts back to the input before returning it.
func Encrypt(plaintext string, key []byte) (EncryptedPayload, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("vault: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("vault: gcm: %w", err)
	}

	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedPayload{}, fmt.Errorf("vault: generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	payload := EncryptedPayload{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}

	// Write-verify: a corrupted encryption must never reach storage.
	roundTrip, err := Decrypt(payload.Ciphertext, payload.IV, payload.AuthTag, key)
	if err != nil || !hmac.Equal([]byte(roundTrip), []byte(plaintext)) {
		return EncryptedPayload{}, errors.New("vault: write verification failed")
	}
	return payload, nil
}

// Decrypt opens a payload produced by Encrypt. AuthTag mismatch fails.
func Decrypt(ciphertext, iv, authTag string, key []byte) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("vault: decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(authTag)
	if err != nil {
		return "", fmt.Errorf("vault: decode auth tag: %w", err)
	}
	if len(nonce) != nonceSize {
		return "", errors.New("vault: iv must be 12 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("vault: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("vault: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// PackSecret joins a payload into the single-column storage form
// base64(iv):base64(tag):base64(ct).
func PackSecret(p EncryptedPayload) string {
	return p.IV + ":" + p.AuthTag + ":" + p.Ciphertext
}

// UnpackSecret splits the packed storage form back into a payload.
func UnpackSecret(s string) (EncryptedPayload, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return EncryptedPayload{}, errors.New("vault: malformed packed secret")
	}
	return EncryptedPayload{IV: parts[0], AuthTag: parts[1], Ciphertext: parts[2]}, nil
}

// Mask hides all but the last four characters of a credential. Short
// values pass through unchanged.
func Mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	return "****" + s[len(s)-4:]
}
