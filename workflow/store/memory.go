package store

import (
	"sync"

	"github.com/cwlgo/wfcore/workflow"
)

// MemoryStore keeps the latest StateMap snapshot per run id in memory.
// Grounded in the teacher's graph/store.MemoryStore; useful for tests
// and single-process deployments where durability across restarts
// isn't required.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]workflow.StateMap
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]workflow.StateMap)}
}

func (m *MemoryStore) SaveState(runID string, state workflow.StateMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(workflow.StateMap, len(state))
	for k, v := range state {
		if v == nil {
			snapshot[k] = nil
			continue
		}
		cp := *v
		snapshot[k] = &cp
	}
	m.runs[runID] = snapshot
	return nil
}

func (m *MemoryStore) LoadState(runID string) (workflow.StateMap, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.runs[runID]
	if !ok {
		return nil, false, nil
	}
	out := make(workflow.StateMap, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out, true, nil
}
