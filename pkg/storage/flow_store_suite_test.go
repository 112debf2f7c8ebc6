package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// FlowStoreSuite exercises the FlowStore contract. Each provider test runs it
// against its own backend.
type FlowStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) FlowStore
	store    FlowStore
	ctx      context.Context
}

func (s *FlowStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
}

func sampleFlow(id string) flow.Flow {
	return flow.Flow{
		ID:          id,
		Name:        "Sample " + id,
		Description: "two step sample",
		IsActive:    true,
		Steps: []flow.Step{
			{Name: "summarize", Order: 1, SystemPrompt: "Summarize.", MaxTokens: 100, Temperature: 0.7},
			{Name: "translate", Order: 2, SystemPrompt: "Translate.", MaxTokens: 150, Temperature: 0.25},
		},
	}
}

func (s *FlowStoreSuite) TestInsertAndGetRoundTrip() {
	before := time.Now().UTC().Add(-time.Second)
	s.Require().NoError(s.store.InsertFlow(s.ctx, sampleFlow("round_trip")))

	got, err := s.store.GetFlow(s.ctx, "round_trip")
	s.Require().NoError(err)

	want := sampleFlow("round_trip")
	s.Equal(want.ID, got.ID)
	s.Equal(want.Name, got.Name)
	s.Equal(want.Description, got.Description)
	s.Equal(want.IsActive, got.IsActive)
	s.Equal(want.Steps, got.Steps)

	s.False(got.CreatedAt.IsZero())
	s.True(got.CreatedAt.After(before))
	s.True(got.CreatedAt.Equal(got.UpdatedAt))
}

func (s *FlowStoreSuite) TestInsertDuplicateFails() {
	s.Require().NoError(s.store.InsertFlow(s.ctx, sampleFlow("dup")))

	other := sampleFlow("dup")
	other.Name = "Other"
	s.ErrorIs(s.store.InsertFlow(s.ctx, other), ErrFlowExists)

	got, err := s.store.GetFlow(s.ctx, "dup")
	s.Require().NoError(err)
	s.Equal("Sample dup", got.Name)
}

func (s *FlowStoreSuite) TestGetMissing() {
	_, err := s.store.GetFlow(s.ctx, "missing")
	s.ErrorIs(err, ErrFlowNotFound)
}

func (s *FlowStoreSuite) TestReplaceKeepsCreatedAt() {
	s.Require().NoError(s.store.InsertFlow(s.ctx, sampleFlow("replace")))
	original, err := s.store.GetFlow(s.ctx, "replace")
	s.Require().NoError(err)

	updated := sampleFlow("replace")
	updated.Name = "Renamed"
	updated.IsActive = false
	updated.Steps = updated.Steps[:1]
	s.Require().NoError(s.store.ReplaceFlow(s.ctx, updated))

	got, err := s.store.GetFlow(s.ctx, "replace")
	s.Require().NoError(err)
	s.Equal("Renamed", got.Name)
	s.False(got.IsActive)
	s.Len(got.Steps, 1)
	s.True(original.CreatedAt.Equal(got.CreatedAt))
	s.False(got.UpdatedAt.Before(original.UpdatedAt))
}

func (s *FlowStoreSuite) TestReplaceMissing() {
	s.ErrorIs(s.store.ReplaceFlow(s.ctx, sampleFlow("ghost")), ErrFlowNotFound)

	_, err := s.store.GetFlow(s.ctx, "ghost")
	s.ErrorIs(err, ErrFlowNotFound)
}

func (s *FlowStoreSuite) TestDeleteReportsCount() {
	s.Require().NoError(s.store.InsertFlow(s.ctx, sampleFlow("gone")))

	n, err := s.store.DeleteFlow(s.ctx, "gone")
	s.Require().NoError(err)
	s.EqualValues(1, n)

	n, err = s.store.DeleteFlow(s.ctx, "gone")
	s.Require().NoError(err)
	s.EqualValues(0, n)

	_, err = s.store.GetFlow(s.ctx, "gone")
	s.ErrorIs(err, ErrFlowNotFound)
}

func (s *FlowStoreSuite) TestListOrderedByID() {
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		s.Require().NoError(s.store.InsertFlow(s.ctx, sampleFlow(id)))
	}

	summaries, err := s.store.ListFlows(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(summaries, 3)

	s.Equal([]string{"alpha", "bravo", "charlie"}, []string{summaries[0].ID, summaries[1].ID, summaries[2].ID})
	s.Equal(FlowSummary{
		ID:          "alpha",
		Name:        "Sample alpha",
		Description: "two step sample",
		StepsCount:  2,
		IsActive:    true,
	}, summaries[0])
}

func (s *FlowStoreSuite) TestListEmpty() {
	summaries, err := s.store.ListFlows(s.ctx)
	s.Require().NoError(err)
	s.NotNil(summaries)
	s.Empty(summaries)
}
