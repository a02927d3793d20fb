package policy

import (
	"context"
	"time"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services"
	"go.uber.org/zap"
)

// ResultsSource returns the latest results of a test case for a subject,
// newest first
type ResultsSource interface {
	Retrieve(ctx context.Context, subject *models.Subject, testcase string) ([]models.Result, error)
}

// BuildMetadata resolves Koji build attributes. SourceCoordinates fails with
// services.ErrBuildNotFound, services.ErrNoSource or
// services.ErrMalformedSource where applicable.
type BuildMetadata interface {
	SourceCoordinates(ctx context.Context, nvr string) (models.SCM, error)
	CreationTime(ctx context.Context, nvr string) (time.Time, error)
}

// RemoteFetcher downloads remote policy documents. A missing document is
// reported as found == false with a nil error.
type RemoteFetcher interface {
	Fetch(ctx context.Context, url string) (content []byte, found bool, err error)
}

// Settings holds the evaluation options taken from configuration
type Settings struct {
	OutcomesPassed          []string
	OutcomesError           []string
	OutcomesIncomplete      []string
	DistinctLatestResultsOn []string
	IncompleteResultsBlock  bool

	// RemoteRuleTemplates maps a subject type, or "*", to URL templates
	RemoteRuleTemplates map[string][]string
	DistGitURLTemplate  string
}

// DefaultSettings returns the stock outcome sets
func DefaultSettings() Settings {
	return Settings{
		OutcomesPassed:          []string{"PASSED", "INFO"},
		OutcomesError:           []string{"ERROR"},
		OutcomesIncomplete:      []string{"QUEUED", "RUNNING"},
		DistinctLatestResultsOn: []string{"scenario", "system_architecture", "system_variant"},
	}
}

type scmOutcome struct {
	scm models.SCM
	err error
}

type fetchOutcome struct {
	content []byte
	found   bool
	err     error
}

// Evaluator evaluates policies for one decision request. It memoizes build
// lookups and remote policy fetches for the lifetime of the request and must
// not be shared between requests.
type Evaluator struct {
	settings Settings
	results  ResultsSource
	builds   BuildMetadata
	fetcher  RemoteFetcher
	logger   *zap.Logger

	scm     map[string]scmOutcome
	fetched map[string]fetchOutcome
}

// NewEvaluator creates a request-scoped evaluator
func NewEvaluator(settings Settings, results ResultsSource, builds BuildMetadata, fetcher RemoteFetcher, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		settings: settings,
		results:  results,
		builds:   builds,
		fetcher:  fetcher,
		logger:   logger,
		scm:      make(map[string]scmOutcome),
		fetched:  make(map[string]fetchOutcome),
	}
}

// Settings returns the evaluation options
func (e *Evaluator) Settings() Settings {
	return e.settings
}

func (e *Evaluator) creationTime(ctx context.Context, nvr string) (time.Time, error) {
	if e.builds == nil {
		return time.Time{}, services.WrapExternal("build metadata lookup is not configured", nil)
	}
	created, err := e.builds.CreationTime(ctx, nvr)
	if err != nil {
		return time.Time{}, services.WrapExternal("failed to retrieve build creation time for "+nvr, err)
	}
	return created, nil
}

func (e *Evaluator) sourceCoordinates(ctx context.Context, nvr string) (models.SCM, error) {
	if out, ok := e.scm[nvr]; ok {
		return out.scm, out.err
	}
	if e.builds == nil {
		return models.SCM{}, services.WrapExternal("build metadata lookup is not configured", nil)
	}
	scm, err := e.builds.SourceCoordinates(ctx, nvr)
	e.scm[nvr] = scmOutcome{scm: scm, err: err}
	return scm, err
}

func (e *Evaluator) fetch(ctx context.Context, url string) ([]byte, bool, error) {
	if out, ok := e.fetched[url]; ok {
		return out.content, out.found, out.err
	}
	if e.fetcher == nil {
		return nil, false, services.WrapExternal("remote rule fetching is not configured", nil)
	}
	content, found, err := e.fetcher.Fetch(ctx, url)
	e.fetched[url] = fetchOutcome{content: content, found: found, err: err}
	return content, found, err
}

// RuleContext verifies rules of every policy applicable to one subject.
// Equal rules declared by several policies are verified once.
type RuleContext struct {
	DecisionContexts []string
	ProductVersion   string
	Subject          *models.Subject

	evaluator *Evaluator
	verified  map[string]bool
}

// NewRuleContext starts evaluating policies for subject
func (e *Evaluator) NewRuleContext(decisionContexts []string, productVersion string, subject *models.Subject) *RuleContext {
	return &RuleContext{
		DecisionContexts: decisionContexts,
		ProductVersion:   productVersion,
		Subject:          subject,
		evaluator:        e,
		verified:         make(map[string]bool),
	}
}

// Verify checks rule unless an equal rule was already verified
func (rc *RuleContext) Verify(ctx context.Context, p *Policy, rule Rule) ([]Answer, error) {
	key := rule.Key()
	if rc.verified[key] {
		return nil, nil
	}
	rc.verified[key] = true
	return rule.check(ctx, p, rc)
}
