package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/promptflow/pkg/flow"
	"github.com/tcmartin/promptflow/pkg/storage"
)

// MockFlowStore is a mock implementation of storage.FlowStore for testing
type MockFlowStore struct {
	mock.Mock
}

func (m *MockFlowStore) GetFlow(ctx context.Context, id string) (flow.Flow, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(flow.Flow), args.Error(1)
}

func (m *MockFlowStore) InsertFlow(ctx context.Context, f flow.Flow) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockFlowStore) ReplaceFlow(ctx context.Context, f flow.Flow) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockFlowStore) DeleteFlow(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFlowStore) ListFlows(ctx context.Context) ([]storage.FlowSummary, error) {
	args := m.Called(ctx)
	summaries, _ := args.Get(0).([]storage.FlowSummary)
	return summaries, args.Error(1)
}

func testFlow(id string) flow.Flow {
	return flow.Flow{
		ID:          id,
		Name:        "Demo Flow",
		Description: "summarize then translate",
		IsActive:    true,
		Steps: []flow.Step{
			{Name: "summarize", Order: 1, SystemPrompt: "Summarize the text.", MaxTokens: 100, Temperature: 0.7},
			{Name: "translate_pt", Order: 2, SystemPrompt: "Translate to Portuguese.", MaxTokens: 150, Temperature: 0.3},
		},
	}
}

func newMemoryRegistry() *FlowRegistryService {
	return NewFlowRegistry(storage.NewMemoryFlowStore(), FlowRegistryOptions{})
}

func TestFlowRegistry(t *testing.T) {
	ctx := context.Background()
	registry := newMemoryRegistry()

	// Test Create
	require.NoError(t, registry.Create(ctx, testFlow("demo")))

	// Test Get
	got, err := registry.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo Flow", got.Name)
	assert.Equal(t, testFlow("demo").Steps, got.Steps)
	assert.False(t, got.CreatedAt.IsZero())

	// Test List
	summaries, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, storage.FlowSummary{
		ID:          "demo",
		Name:        "Demo Flow",
		Description: "summarize then translate",
		StepsCount:  2,
		IsActive:    true,
	}, summaries[0])

	// Test Update
	updated := testFlow("demo")
	updated.Steps = updated.Steps[:1]
	updated.IsActive = false
	require.NoError(t, registry.Update(ctx, updated))

	got, err = registry.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, got.Steps, 1)
	assert.False(t, got.IsActive)

	// Test Delete
	require.NoError(t, registry.Delete(ctx, "demo"))
	_, err = registry.Get(ctx, "demo")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestCreateDuplicateIdentifier(t *testing.T) {
	ctx := context.Background()
	registry := newMemoryRegistry()
	require.NoError(t, registry.Create(ctx, testFlow("demo")))

	// Same id with a different, still valid, definition
	other := testFlow("demo")
	other.Name = "Another Flow"
	err := registry.Create(ctx, other)
	assert.ErrorIs(t, err, flow.ErrDuplicateIdentifier)

	got, err := registry.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo Flow", got.Name)
}

func TestCreateInsertRaceReportsDuplicate(t *testing.T) {
	store := new(MockFlowStore)
	registry := NewFlowRegistry(store, FlowRegistryOptions{})
	f := testFlow("demo")

	store.On("GetFlow", mock.Anything, "demo").Return(flow.Flow{}, storage.ErrFlowNotFound)
	store.On("InsertFlow", mock.Anything, f).Return(storage.ErrFlowExists)

	err := registry.Create(context.Background(), f)
	assert.ErrorIs(t, err, flow.ErrDuplicateIdentifier)
	store.AssertExpectations(t)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *flow.Flow)
		wantErr error
	}{
		{
			name:    "invalid identifier",
			mutate:  func(f *flow.Flow) { f.ID = "demo-flow" },
			wantErr: flow.ErrInvalidIdentifier,
		},
		{
			name:    "empty identifier",
			mutate:  func(f *flow.Flow) { f.ID = "" },
			wantErr: flow.ErrInvalidIdentifier,
		},
		{
			name:    "gap in step orders",
			mutate:  func(f *flow.Flow) { f.Steps[1].Order = 3 },
			wantErr: flow.ErrInvalidStepOrdering,
		},
		{
			name:    "no steps",
			mutate:  func(f *flow.Flow) { f.Steps = nil },
			wantErr: flow.ErrEmptyFlow,
		},
		{
			name:    "definition checked before identifier",
			mutate:  func(f *flow.Flow) { f.ID = "bad id"; f.Name = "Bad!" },
			wantErr: flow.ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockFlowStore)
			registry := NewFlowRegistry(store, FlowRegistryOptions{})

			f := testFlow("demo")
			tt.mutate(&f)

			err := registry.Create(context.Background(), f)
			assert.ErrorIs(t, err, tt.wantErr)
			// nothing reaches the store
			store.AssertNotCalled(t, "GetFlow", mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "InsertFlow", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateInactiveFlowIsStored(t *testing.T) {
	ctx := context.Background()
	registry := newMemoryRegistry()

	f := testFlow("paused")
	f.IsActive = false
	require.NoError(t, registry.Create(ctx, f))

	got, err := registry.Get(ctx, "paused")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestUpdateMissingFlow(t *testing.T) {
	err := newMemoryRegistry().Update(context.Background(), testFlow("missing"))
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestUpdateRejectsInvalidDefinition(t *testing.T) {
	ctx := context.Background()
	registry := newMemoryRegistry()
	require.NoError(t, registry.Create(ctx, testFlow("demo")))

	f := testFlow("demo")
	f.Steps[0].Temperature = 1.5
	assert.ErrorIs(t, registry.Update(ctx, f), flow.ErrInvalidFormat)

	got, err := registry.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 0.7, got.Steps[0].Temperature)
}

func TestDeleteMissingFlow(t *testing.T) {
	err := newMemoryRegistry().Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := new(MockFlowStore)
	registry := NewFlowRegistry(store, FlowRegistryOptions{})

	store.On("ListFlows", mock.Anything).Return(nil, storeErr)
	store.On("DeleteFlow", mock.Anything, "demo").Return(int64(0), storeErr)
	store.On("GetFlow", mock.Anything, "demo").Return(flow.Flow{}, storeErr)

	_, err := registry.List(context.Background())
	assert.ErrorIs(t, err, storeErr)

	assert.ErrorIs(t, registry.Delete(context.Background(), "demo"), storeErr)

	err = registry.Create(context.Background(), testFlow("demo"))
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, flow.ErrDuplicateIdentifier)
}
