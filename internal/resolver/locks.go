package resolver

import "sync"

// machineLocks serializes transitions per machine id. Each machine gets
// its own mutex so unrelated machines never contend.
type machineLocks struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func newMachineLocks() *machineLocks {
	return &machineLocks{mutexes: make(map[string]*sync.Mutex)}
}

func (m *machineLocks) Lock(id string)   { m.get(id).Lock() }
func (m *machineLocks) Unlock(id string) { m.get(id).Unlock() }

func (m *machineLocks) get(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mu, ok := m.mutexes[id]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[id] = mu
	return mu
}
