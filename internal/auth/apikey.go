package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/equiptrack/internal/config"
)

// APIKeyPrefix marks generated keys
const APIKeyPrefix = "eqt_"

// APIKeys checks presented keys against bcrypt hashes from the config
type APIKeys struct {
	keys []config.APIKeyConfig
}

// NewAPIKeys creates a key set
func NewAPIKeys(keys []config.APIKeyConfig) *APIKeys {
	return &APIKeys{keys: keys}
}

// Len returns the number of configured keys
func (k *APIKeys) Len() int {
	return len(k.keys)
}

// Authenticate returns the identity bound to key
func (k *APIKeys) Authenticate(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	for _, entry := range k.keys {
		if bcrypt.CompareHashAndPassword([]byte(entry.KeyHash), []byte(key)) == nil {
			return entry.Email, true
		}
	}
	return "", false
}

// HashKey returns the bcrypt hash stored in the config for key
func HashKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// GenerateKey returns a new random API key
func GenerateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}
