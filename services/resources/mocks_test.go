package resources

import (
	"context"
	"errors"

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

// MockCaller is a mock XML-RPC client
type MockCaller struct {
	mock.Mock
}

func (m *MockCaller) Call(serviceMethod string, args interface{}, reply interface{}) error {
	return m.Called(serviceMethod, args, reply).Error(0)
}

// unavailableStore fails every operation
type unavailableStore struct{}

var errUnavailable = errors.New("cache unavailable")

func (unavailableStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errUnavailable
}
func (unavailableStore) Set(context.Context, string, []byte) error { return errUnavailable }
func (unavailableStore) Delete(context.Context, string) error      { return errUnavailable }

var kojiBuildType = &models.SubjectType{
	ID:          "koji_build",
	Aliases:     []string{"brew-build"},
	IsKojiBuild: true,
	IsNVR:       true,
	ItemDict:    &models.ItemDict{ItemKey: "original_spec_nvr"},
}

func result(id int64, testcase, outcome, submitTime string) models.Result {
	return models.Result{
		ID:         id,
		Testcase:   models.Testcase{Name: testcase},
		Outcome:    outcome,
		SubmitTime: submitTime,
		Data:       map[string][]string{"item": {"nethack-1.2.3-1.fc38"}, "type": {"koji_build"}},
	}
}
