package tokenstore

import (
	"context"
	"sync"

	"github.com/xenking/techshop/internal/domain/session"
)

var _ session.TokenStore = (*Memory)(nil)

// Memory keeps the token in process memory only.
type Memory struct {
	mu    sync.Mutex
	token string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", session.ErrNoToken
	}
	return m.token, nil
}

func (m *Memory) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Remove(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
