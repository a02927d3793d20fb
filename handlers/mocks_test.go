package handlers

import (
	"context"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services/listener"
	"github.com/stretchr/testify/mock"
)

// MockDecisionMaker is a mock implementation of DecisionMaker
type MockDecisionMaker struct {
	mock.Mock
}

func (m *MockDecisionMaker) MakeDecision(ctx context.Context, req *models.DecisionRequest) (*models.DecisionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecisionResponse), args.Error(1)
}

// MockMessageHandler is a mock implementation of MessageHandler
type MockMessageHandler struct {
	mock.Mock
}

func (m *MockMessageHandler) HandleResultsDB(ctx context.Context, msg *listener.ResultsDBMessage) (listener.Outcome, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(listener.Outcome), args.Error(1)
}

func (m *MockMessageHandler) HandleWaiverDB(ctx context.Context, msg *listener.WaiverDBMessage) (listener.Outcome, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(listener.Outcome), args.Error(1)
}
