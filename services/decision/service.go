package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"github.com/release-engineering/greenwave-sub000/services"
	"github.com/release-engineering/greenwave-sub000/services/cache"
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/release-engineering/greenwave-sub000/services/resources"
	"github.com/release-engineering/greenwave-sub000/services/subjects"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

// whenPattern is the accepted form of the "when" request parameter
var whenPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,6}$`)

// Deps holds the collaborators of the decision service
type Deps struct {
	Policies []*policy.Policy
	Registry *subjects.Registry
	Settings policy.Settings
	Repos    *repositories.Repositories
	Cache    cache.Store
	Builds   policy.BuildMetadata
	Fetcher  policy.RemoteFetcher
}

// Service makes gating decisions
type Service struct {
	policies []*policy.Policy
	registry *subjects.Registry
	settings policy.Settings
	repos    *repositories.Repositories
	cache    cache.Store
	builds   policy.BuildMetadata
	fetcher  policy.RemoteFetcher
	logger   *zap.Logger
}

// NewService creates a new decision service
func NewService(deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NoopStore{}
	}
	if deps.Registry == nil {
		deps.Registry = subjects.NewRegistry(nil)
	}
	return &Service{
		policies: deps.Policies,
		registry: deps.Registry,
		settings: deps.Settings,
		repos:    deps.Repos,
		cache:    deps.Cache,
		builds:   deps.Builds,
		fetcher:  deps.Fetcher,
		logger:   logger,
	}
}

// Policies returns the configured policies
func (s *Service) Policies() []*policy.Policy {
	return s.policies
}

// Registry returns the subject type registry
func (s *Service) Registry() *subjects.Registry {
	return s.registry
}

// ApplicablePairs returns the decision context and product version pairs
// of the configured policies that gate the subject and test case of attrs.
// Remote policies are fetched to find out whether they mention the test case.
func (s *Service) ApplicablePairs(ctx context.Context, attrs policy.MatchAttributes) []policy.Pair {
	results := resources.NewResultsRetriever(
		s.repos.Results, s.cache,
		s.settings.DistinctLatestResultsOn, s.settings.OutcomesPassed,
		resources.RetrieverOptions{}, s.logger,
	)
	ev := policy.NewEvaluator(s.settings, results, s.builds, s.fetcher, s.logger)
	return ev.ApplicablePairs(ctx, s.policies, attrs)
}

// request is a validated decision request
type request struct {
	decisionContexts []string
	productVersion   string
	rules            []policy.Rule
	subjects         []*models.Subject
	verbose          bool
	resultOpts       resources.RetrieverOptions
	waiverOpts       resources.RetrieverOptions
}

// MakeDecision evaluates the request against the configured policies, or
// against its inline rules when it has any
func (s *Service) MakeDecision(ctx context.Context, req *models.DecisionRequest) (*models.DecisionResponse, error) {
	r, err := s.parseRequest(req)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("new decision request",
		zap.Strings("decision_contexts", r.decisionContexts),
		zap.String("product_version", r.productVersion),
		zap.Int("subjects", len(r.subjects)),
		zap.Int("rules", len(r.rules)),
		zap.Bool("verbose", r.verbose),
	)

	policies := s.policies
	if len(r.rules) > 0 {
		policies = []*policy.Policy{
			policy.NewOnDemandPolicy(r.productVersion, r.rules, req.ExcludedPackages, req.Packages),
		}
	}

	results := resources.NewResultsRetriever(
		s.repos.Results, s.cache,
		s.settings.DistinctLatestResultsOn, s.settings.OutcomesPassed,
		r.resultOpts, s.logger,
	)
	waivers := resources.NewWaiversRetriever(s.repos.Waivers, r.waiverOpts, s.logger)
	ev := policy.NewEvaluator(s.settings, results, s.builds, s.fetcher, s.logger)

	d := &decision{
		decisionContexts: r.decisionContexts,
		productVersion:   r.productVersion,
		verbose:          r.verbose,
	}

	var notFound error
	checked := 0
	for _, subject := range r.subjects {
		sel := policy.Select(policies, r.decisionContexts, r.productVersion, subject)
		if sel.Empty() {
			if subject.IgnoreMissingPolicy() {
				continue
			}
			if notFound == nil {
				notFound = services.NewNotFoundError(fmt.Sprintf(
					"Found no applicable policies for %s subjects at gating point(s) %s in %s",
					subject.Type(), strings.Join(r.decisionContexts, " "), r.productVersion,
				))
			}
			s.logger.Debug("no applicable policies", zap.String("subject", subject.String()))
			continue
		}
		checked++
		if err := d.check(ctx, ev, results, subject, sel); err != nil {
			return nil, err
		}
	}
	if checked == 0 && notFound != nil {
		return nil, notFound
	}

	if err := d.waive(ctx, waivers); err != nil {
		return nil, err
	}

	return d.response(len(r.rules) == 0), nil
}

func (s *Service) parseRequest(req *models.DecisionRequest) (*request, error) {
	if req == nil {
		return nil, services.ErrNoPayload
	}
	if req.ProductVersion == "" {
		return nil, services.NewValidationError("Missing required product version")
	}

	dcs, err := parseDecisionContexts(req.DecisionContext)
	if err != nil {
		return nil, err
	}
	if len(dcs) == 0 && len(req.Rules) == 0 {
		return nil, services.NewValidationError("Either decision_context or rules is required.")
	}
	if len(dcs) > 0 && len(req.Rules) > 0 {
		return nil, services.NewValidationError("Cannot have both decision_context and rules")
	}

	subs, err := s.requestSubjects(req)
	if err != nil {
		return nil, err
	}

	rules, err := parseRules(req.Rules)
	if err != nil {
		return nil, err
	}

	verbose, err := parseVerbose(req.Verbose)
	if err != nil {
		return nil, err
	}

	when, err := parseWhen(req.When)
	if err != nil {
		return nil, err
	}

	return &request{
		decisionContexts: dcs,
		productVersion:   req.ProductVersion,
		rules:            rules,
		subjects:         subs,
		verbose:          verbose,
		resultOpts:       resources.RetrieverOptions{IgnoreIDs: req.IgnoreResult, When: when},
		waiverOpts:       resources.RetrieverOptions{IgnoreIDs: req.IgnoreWaiver, When: when},
	}, nil
}

// parseDecisionContexts accepts a single decision context or a list
func parseDecisionContexts(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil, nil
		}
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, services.NewValidationError("Invalid decision_context, must be a string or a list of strings")
	}
	return many, nil
}

func parseRules(raw []json.RawMessage) ([]policy.Rule, error) {
	rules := make([]policy.Rule, 0, len(raw))
	for _, item := range raw {
		var spec models.RuleSpec
		if err := json.Unmarshal(item, &spec); err != nil {
			return nil, services.NewValidationError("Invalid rule, must be an object")
		}
		if err := utils.ValidateStruct(spec); err != nil {
			verr := services.NewValidationError("Invalid rule: " + err.Error())
			for field, msg := range utils.GetValidationFields(err) {
				verr.WithDetail(field, msg)
			}
			return nil, verr
		}
		rule, err := policy.RuleFromSpec(spec)
		if err != nil {
			return nil, services.NewValidationError(err.Error())
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseVerbose(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}
	var verbose bool
	if err := json.Unmarshal(raw, &verbose); err != nil || isNull(raw) {
		return false, services.NewValidationError("Invalid verbose flag, must be a bool")
	}
	return verbose, nil
}

// parseWhen validates the "when" parameter and normalizes it to the
// ResultsDB timestamp format
func parseWhen(when string) (string, error) {
	if when == "" {
		return "", nil
	}
	invalid := services.NewValidationError(`Invalid "when" parameter, must be in ISO8601 format`)
	if !whenPattern.MatchString(when) {
		return "", invalid
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999", when)
	if err != nil {
		return "", invalid
	}
	return models.FormatTimestamp(t), nil
}

// requestSubjects reads either the "subject" list or the
// subject_type/subject_identifier pair
func (s *Service) requestSubjects(req *models.DecisionRequest) ([]*models.Subject, error) {
	if len(req.Subject) > 0 {
		var entries []map[string]any
		if err := json.Unmarshal(req.Subject, &entries); err != nil || len(entries) == 0 {
			return nil, services.NewValidationError("Invalid subject, must be a list of dicts")
		}
		subs := make([]*models.Subject, 0, len(entries))
		for _, entry := range entries {
			if entry == nil {
				return nil, services.NewValidationError("Invalid subject, must be a list of dicts")
			}
			subject, err := s.registry.FromData(entry)
			if err != nil {
				return nil, err
			}
			subs = append(subs, subject)
		}
		return subs, nil
	}

	if req.SubjectType == nil {
		return nil, services.NewValidationError(`Missing required "subject_type" parameter`)
	}
	if req.SubjectIdentifier == nil {
		return nil, services.NewValidationError(`Missing required "subject_identifier" parameter`)
	}
	return []*models.Subject{s.registry.Create(*req.SubjectType, *req.SubjectIdentifier)}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || strings.TrimSpace(string(raw)) == "null"
}
