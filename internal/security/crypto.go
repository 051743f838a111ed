package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// Encryptor encrypts the persisted credential at rest. The key is derived
// from machine identity plus a per-install salt, so a copied credential file
// is useless on another host.
type Encryptor struct {
	derivedKey []byte
}

// NewEncryptor creates an encryptor keyed to this machine and install.
func NewEncryptor(stateDir string) (*Encryptor, error) {
	salt, err := generateOrLoadSalt(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain salt: %w", err)
	}

	machineID, err := getMachineID()
	if err != nil {
		return nil, fmt.Errorf("failed to get machine ID: %w", err)
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	keyMaterial := fmt.Sprintf("%s:%s", machineID, userHome)
	derivedKey := pbkdf2.Key([]byte(keyMaterial), salt, 100000, 32, sha256.New)

	return &Encryptor{derivedKey: derivedKey}, nil
}

// Encrypt encrypts plaintext and returns base64-encoded ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	block, err := aes.NewCipher(e.derivedKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext string) ([]byte, error) {
	if ciphertext == "" {
		return nil, fmt.Errorf("ciphertext cannot be empty")
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	block, err := aes.NewCipher(e.derivedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// generateOrLoadSalt loads the install salt, creating it on first run.
func generateOrLoadSalt(stateDir string) ([]byte, error) {
	saltPath := filepath.Join(stateDir, ".salt")

	if salt, err := os.ReadFile(saltPath); err == nil && len(salt) == 32 {
		return salt, nil
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate random salt: %w", err)
	}

	if err := os.WriteFile(saltPath, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}

	return salt, nil
}

// getMachineID reads the machine ID from /etc/machine-id or fallback sources
func getMachineID() (string, error) {
	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		return string(data[:min(len(data), 32)]), nil
	}

	if data, err := os.ReadFile("/var/lib/dbus/machine-id"); err == nil {
		return string(data[:min(len(data), 32)]), nil
	}

	// Fallback: hostname + user ID
	hostname, _ := os.Hostname()
	fallback := fmt.Sprintf("%s-%d", hostname, os.Getuid())
	if len(fallback) < 8 {
		return "fallback-machine-id", nil
	}

	return fallback, nil
}
