package localdatastore

import (
	"context"
	"sync"

	"github.com/backendtester/harness/wire"
)

type memoryStorage struct {
	scopes map[string]map[string][]byte
	ids    map[string]int64
	lock   sync.Mutex
}

// NewMemoryStorage returns an engine that keeps encoded entities in maps.
func NewMemoryStorage() Storage {
	return &memoryStorage{scopes: make(map[string]map[string][]byte), ids: make(map[string]int64)}
}

func (m *memoryStorage) Get(_ context.Context, key wire.Key) (wire.Entity, bool, error) {
	m.lock.Lock()
	data, ok := m.scopes[keyScope(key)][key.String()]
	m.lock.Unlock()
	if !ok {
		return wire.Entity{}, false, nil
	}
	e, err := wire.DecodeEntity(data)
	return e, err == nil, err
}

func (m *memoryStorage) Put(_ context.Context, entity wire.Entity) error {
	data := wire.EncodeEntity(entity)
	scope := keyScope(entity.Key)
	m.lock.Lock()
	defer m.lock.Unlock()
	items := m.scopes[scope]
	if items == nil {
		items = make(map[string][]byte)
		m.scopes[scope] = items
	}
	items[entity.Key.String()] = data
	return nil
}

func (m *memoryStorage) Delete(_ context.Context, key wire.Key) error {
	m.lock.Lock()
	delete(m.scopes[keyScope(key)], key.String())
	m.lock.Unlock()
	return nil
}

func (m *memoryStorage) List(_ context.Context, app, namespace, kind string) ([]wire.Entity, error) {
	m.lock.Lock()
	items := m.scopes[scopeOf(app, namespace, kind)]
	all := make([][]byte, 0, len(items))
	for _, data := range items {
		all = append(all, data)
	}
	m.lock.Unlock()
	return decodeAll(all)
}

func (m *memoryStorage) AllocateID(_ context.Context, app string) (int64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.ids[app]++
	return m.ids[app], nil
}

func (m *memoryStorage) Close() error {
	return nil
}
