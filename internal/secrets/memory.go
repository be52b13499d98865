package secrets

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	memoryStoreMaxSize = 10000 // maximum number of secrets held in memory
)

type memoryStore struct {
	maxSize       int
	secrets       map[string][]byte
	evictionQueue []string
	mu            sync.Mutex
}

// NewMemoryStore returns an in-process Store. References are random UUIDs,
// never derived from the secret content.
func NewMemoryStore() Store {
	return &memoryStore{
		maxSize: memoryStoreMaxSize,
		secrets: make(map[string][]byte),
	}
}

func (m *memoryStore) Put(secret []byte) (string, error) {
	ref, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate secret reference: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Enforce maximum size.
	for len(m.secrets) >= m.maxSize {
		oldest := m.evictionQueue[0]
		m.evictionQueue = m.evictionQueue[1:]
		delete(m.secrets, oldest)
	}

	key := ref.String()
	m.secrets[key] = append([]byte(nil), secret...)
	m.evictionQueue = append(m.evictionQueue, key)
	return key, nil
}

func (m *memoryStore) Get(ref string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.secrets[ref]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), s...), true
}

func (m *memoryStore) Delete(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.secrets[ref]; !ok {
		return
	}
	delete(m.secrets, ref)
	for i, key := range m.evictionQueue {
		if key == ref {
			m.evictionQueue = append(m.evictionQueue[:i], m.evictionQueue[i+1:]...)
			break
		}
	}
}
