package decision

import (
	"context"
	"time"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"github.com/stretchr/testify/mock"
)

// MockResultsRepository is a mock implementation of repositories.ResultsRepository
type MockResultsRepository struct {
	mock.Mock
}

func (m *MockResultsRepository) Latest(ctx context.Context, query repositories.ResultsQuery) ([]models.Result, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Result), args.Error(1)
}

// MockWaiversRepository is a mock implementation of repositories.WaiversRepository
type MockWaiversRepository struct {
	mock.Mock
}

func (m *MockWaiversRepository) Filtered(ctx context.Context, filters []models.WaiverFilter) ([]models.Waiver, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Waiver), args.Error(1)
}

// MockBuildMetadata is a mock implementation of policy.BuildMetadata
type MockBuildMetadata struct {
	mock.Mock
}

func (m *MockBuildMetadata) SourceCoordinates(ctx context.Context, nvr string) (models.SCM, error) {
	args := m.Called(ctx, nvr)
	return args.Get(0).(models.SCM), args.Error(1)
}

func (m *MockBuildMetadata) CreationTime(ctx context.Context, nvr string) (time.Time, error) {
	args := m.Called(ctx, nvr)
	return args.Get(0).(time.Time), args.Error(1)
}

// MockRemoteFetcher is a mock implementation of policy.RemoteFetcher
type MockRemoteFetcher struct {
	mock.Mock
}

func (m *MockRemoteFetcher) Fetch(ctx context.Context, url string) ([]byte, bool, error) {
	args := m.Called(ctx, url)
	var content []byte
	if c := args.Get(0); c != nil {
		content = c.([]byte)
	}
	return content, args.Bool(1), args.Error(2)
}

func forTestcase(testcase string) interface{} {
	return mock.MatchedBy(func(q repositories.ResultsQuery) bool {
		return q.Testcase == testcase
	})
}

func result(id int64, testcase, outcome string) models.Result {
	return models.Result{
		ID:         id,
		Testcase:   models.Testcase{Name: testcase},
		Outcome:    outcome,
		SubmitTime: "2024-03-01T10:00:00.000000",
		Data: map[string][]string{
			"item": {nvr},
			"type": {"koji_build"},
		},
	}
}
