package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	APIKeyPrefix = "amesh_"
	apiKeyBytes  = 24
)

// GenerateAPIKey returns "amesh_" followed by 48 lowercase hex characters
// drawn from crypto/rand.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}
