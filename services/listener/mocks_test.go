package listener

import (
	"context"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/stretchr/testify/mock"
)

type MockDecider struct {
	mock.Mock
}

func (m *MockDecider) MakeDecision(ctx context.Context, req *models.DecisionRequest) (*models.DecisionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecisionResponse), args.Error(1)
}

func (m *MockDecider) ApplicablePairs(ctx context.Context, attrs policy.MatchAttributes) []policy.Pair {
	args := m.Called(ctx, attrs)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]policy.Pair)
}

type MockGuesser struct {
	mock.Mock
}

func (m *MockGuesser) ProductVersions(ctx context.Context, subject *models.Subject, taskID int64) ([]string, error) {
	args := m.Called(ctx, subject, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// current matches requests for the decision as of now
func current() any {
	return mock.MatchedBy(func(req *models.DecisionRequest) bool { return req.When == "" })
}

// previous matches requests for the decision right before an event
func previous(when string) any {
	return mock.MatchedBy(func(req *models.DecisionRequest) bool { return req.When == when })
}

func passed() *models.DecisionResponse {
	return &models.DecisionResponse{
		PoliciesSatisfied: true,
		Summary:           "All required tests passed",
		SatisfiedRequirements: []map[string]any{
			{"type": "test-result-passed", "testcase": "T1", "result_id": 2},
		},
		ApplicablePolicies:        []string{"pkga-policy"},
		IncludeApplicablePolicies: true,
	}
}

func failed(resultID int) *models.DecisionResponse {
	return &models.DecisionResponse{
		PoliciesSatisfied: false,
		Summary:           "1 of 1 required tests failed",
		UnsatisfiedRequirements: []map[string]any{
			{"type": "test-result-failed", "testcase": "T1", "result_id": resultID},
		},
		ApplicablePolicies:        []string{"pkga-policy"},
		IncludeApplicablePolicies: true,
	}
}
