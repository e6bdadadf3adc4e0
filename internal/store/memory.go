package store

import (
	"context"
	"sort"
	"sync"

	"github.com/itstheanurag/fnrunner/internal/model"
)

// Memory keeps everything in process. Used for local runs and tests.
type Memory struct {
	mu        sync.RWMutex
	functions map[string]model.Definition
	routes    map[string]string
	records   []model.ExecutionRecord
}

func NewMemory() *Memory {
	return &Memory{
		functions: make(map[string]model.Definition),
		routes:    make(map[string]string),
	}
}

func (m *Memory) CreateFunction(_ context.Context, def *model.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.routes[def.Route]; taken {
		return ErrRouteTaken
	}
	m.functions[def.ID] = *def
	m.routes[def.Route] = def.ID
	return nil
}

func (m *Memory) GetFunction(_ context.Context, id string) (*model.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.functions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &def, nil
}

func (m *Memory) GetFunctionByRoute(_ context.Context, route string) (*model.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.routes[route]
	if !ok {
		return nil, ErrNotFound
	}
	def := m.functions[id]
	return &def, nil
}

func (m *Memory) ListFunctions(_ context.Context) ([]*model.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	defs := make([]*model.Definition, 0, len(m.functions))
	for _, def := range m.functions {
		def := def
		defs = append(defs, &def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].CreatedAt.Before(defs[j].CreatedAt) })
	return defs, nil
}

func (m *Memory) UpdateFunction(_ context.Context, def *model.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.functions[def.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := m.routes[def.Route]; taken && owner != def.ID {
		return ErrRouteTaken
	}
	delete(m.routes, prev.Route)
	m.functions[def.ID] = *def
	m.routes[def.Route] = def.ID
	return nil
}

func (m *Memory) DeleteFunction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.functions[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.functions, id)
	delete(m.routes, def.Route)
	return nil
}

func (m *Memory) AppendRecord(_ context.Context, rec *model.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *Memory) ListRecords(_ context.Context, functionID string, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = DefaultRecordLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ExecutionRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].FunctionID == functionID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}
