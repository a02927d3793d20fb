package policy

import (
	"context"
	"time"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockResultsSource is a mock implementation of ResultsSource
type MockResultsSource struct {
	mock.Mock
}

func (m *MockResultsSource) Retrieve(ctx context.Context, subject *models.Subject, testcase string) ([]models.Result, error) {
	args := m.Called(ctx, subject, testcase)
	if results := args.Get(0); results != nil {
		return results.([]models.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBuildMetadata is a mock implementation of BuildMetadata
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

// MockRemoteFetcher is a mock implementation of RemoteFetcher
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

var kojiBuildType = &models.SubjectType{
	ID:          "koji_build",
	Aliases:     []string{"brew-build"},
	IsKojiBuild: true,
	IsNVR:       true,
	ItemKey:     "original_spec_nvr",
}

func kojiBuild(nvr string) *models.Subject {
	return models.NewSubject(kojiBuildType, nvr)
}

func result(id int64, testcase, outcome string, data map[string][]string) models.Result {
	if data == nil {
		data = map[string][]string{}
	}
	return models.Result{
		ID:         id,
		Testcase:   models.Testcase{Name: testcase},
		Outcome:    outcome,
		Data:       data,
		SubmitTime: "2024-03-01T10:00:00.000000",
	}
}

type testEvaluator struct {
	*Evaluator
	results *MockResultsSource
	builds  *MockBuildMetadata
	fetcher *MockRemoteFetcher
}

func newTestEvaluator(settings Settings) *testEvaluator {
	results := new(MockResultsSource)
	builds := new(MockBuildMetadata)
	fetcher := new(MockRemoteFetcher)
	return &testEvaluator{
		Evaluator: NewEvaluator(settings, results, builds, fetcher, zap.NewNop()),
		results:   results,
		builds:    builds,
		fetcher:   fetcher,
	}
}

func checkAll(ctx context.Context, ev *Evaluator, policies []*Policy, dcs []string, pv string, subject *models.Subject) ([]Answer, error) {
	rc := ev.NewRuleContext(dcs, pv, subject)
	var answers []Answer
	for _, p := range policies {
		a, err := p.Check(ctx, rc)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a...)
	}
	return answers, nil
}

func answerTypes(answers []Answer) []string {
	types := make([]string, 0, len(answers))
	for _, a := range answers {
		types = append(types, a.ToJSON()["type"].(string))
	}
	return types
}
