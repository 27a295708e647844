package testkit

import (
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/crx/cidutil"
	"xdao.co/crx/storage"
)

// MemStore is an in-memory storage.Store for tests.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

var _ storage.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{data: map[string][]byte{}}
}

func (m *MemStore) Put(container []byte) (cid.Cid, error) {
	id, err := cidutil.ContainerCID(container)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if _, ok := m.data[id.KeyString()]; !ok {
		m.data[id.KeyString()] = append([]byte(nil), container...)
	}
	return id, nil
}

func (m *MemStore) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[id.KeyString()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemStore) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[id.KeyString()]
	return ok
}

// Puts returns how many Put calls reached the store.
func (m *MemStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
