package session

import (
	"errors"
	"sync"

	"github.com/marianozunino/gallery/internal/db"
)

// TokenKey is the storage key of the bearer credential.
const TokenKey = "jwt"

// Store reads and writes the bearer credential.
type Store interface {
	// Token returns the credential and whether one is stored.
	Token() (string, bool)
	SetToken(token string) error
	Clear() error
}

// MemoryStore keeps the credential for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.SetToken("")
}

// DBStore persists the credential in the SQLite state file so it survives
// restarts.
type DBStore struct {
	db *db.DB
}

func NewDBStore(d *db.DB) *DBStore {
	return &DBStore{db: d}
}

func (s *DBStore) Token() (string, bool) {
	token, err := s.db.GetValue(TokenKey)
	if err != nil {
		return "", false
	}
	return token, token != ""
}

func (s *DBStore) SetToken(token string) error {
	if token == "" {
		return errors.New("token is empty")
	}
	return s.db.SetValue(TokenKey, token)
}

func (s *DBStore) Clear() error {
	return s.db.DeleteValue(TokenKey)
}
