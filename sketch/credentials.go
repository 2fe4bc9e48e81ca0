package sketch

import (
	"context"
	"errors"
	"strings"
)

// Authenticator supplies the token sent with every feature-service request.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// APIKeyManager authenticates with a static API key. Keys are not refreshed.
type APIKeyManager struct {
	key string
}

// NewAPIKeyManager wraps a static API key
func NewAPIKeyManager(key string) (*APIKeyManager, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("api key is empty")
	}
	return &APIKeyManager{key: key}, nil
}

// Token returns the API key.
func (m *APIKeyManager) Token(context.Context) (string, error) {
	return m.key, nil
}

// String keeps the key out of logs.
func (m *APIKeyManager) String() string {
	if len(m.key) <= 4 {
		return "APIKeyManager(****)"
	}
	return "APIKeyManager(****" + m.key[len(m.key)-4:] + ")"
}
