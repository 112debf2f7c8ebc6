package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// MemoryProvider implements the StorageProvider interface using in-memory storage
type MemoryProvider struct {
	flowStore *MemoryFlowStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		flowStore: NewMemoryFlowStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize(ctx context.Context) error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// GetFlowStore returns a store for flow definitions
func (p *MemoryProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// MemoryFlowStore implements the FlowStore interface using in-memory storage
type MemoryFlowStore struct {
	flows map[string]flow.Flow
	mu    sync.RWMutex
}

// NewMemoryFlowStore creates a new in-memory flow store
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{
		flows: make(map[string]flow.Flow),
	}
}

// GetFlow retrieves a flow by ID
func (s *MemoryFlowStore) GetFlow(ctx context.Context, id string) (flow.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[id]
	if !ok {
		return flow.Flow{}, ErrFlowNotFound
	}
	return cloneFlow(f), nil
}

// InsertFlow stores a new flow
func (s *MemoryFlowStore) InsertFlow(ctx context.Context, f flow.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[f.ID]; ok {
		return ErrFlowExists
	}

	ts := now()
	f = cloneFlow(f)
	f.CreatedAt = ts
	f.UpdatedAt = ts
	s.flows[f.ID] = f

	return nil
}

// ReplaceFlow overwrites an existing flow
func (s *MemoryFlowStore) ReplaceFlow(ctx context.Context, f flow.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.flows[f.ID]
	if !ok {
		return ErrFlowNotFound
	}

	f = cloneFlow(f)
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = now()
	s.flows[f.ID] = f

	return nil
}

// DeleteFlow removes a flow
func (s *MemoryFlowStore) DeleteFlow(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[id]; !ok {
		return 0, nil
	}
	delete(s.flows, id)

	return 1, nil
}

// ListFlows returns summaries of all flows ordered by ID
func (s *MemoryFlowStore) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]FlowSummary, 0, len(s.flows))
	for _, f := range s.flows {
		summaries = append(summaries, Summarize(f))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})

	return summaries, nil
}

// cloneFlow copies the step slice so stored flows never alias caller memory
func cloneFlow(f flow.Flow) flow.Flow {
	if f.Steps != nil {
		steps := make([]flow.Step, len(f.Steps))
		copy(steps, f.Steps)
		f.Steps = steps
	}
	return f
}
