package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services"
	"go.uber.org/zap"
)

// remoteTemplates picks the URL templates for a remote rule: explicit rule
// sources, then the subject type's templates, the wildcard templates and
// finally the dist-git template.
func (e *Evaluator) remoteTemplates(rule *RemoteRule, subject *models.Subject) []string {
	if len(rule.Sources) > 0 {
		return rule.Sources
	}
	if templates := e.settings.RemoteRuleTemplates[subject.Type()]; len(templates) > 0 {
		return templates
	}
	if templates := e.settings.RemoteRuleTemplates["*"]; len(templates) > 0 {
		return templates
	}
	if e.settings.DistGitURLTemplate != "" {
		return []string{e.settings.DistGitURLTemplate}
	}
	return nil
}

// renderURL fills a template from the subject and, when the template needs
// them, the subject's source-control coordinates
func (e *Evaluator) renderURL(ctx context.Context, template string, subject *models.Subject) (string, error) {
	var params []string
	if strings.Contains(template, "{pkg_name}") ||
		strings.Contains(template, "{pkg_namespace}") ||
		strings.Contains(template, "{rev}") {
		scm, err := e.sourceCoordinates(ctx, subject.Identifier())
		if err != nil {
			return "", err
		}
		name := scm.Name
		// container builds are named "<repo>-container"
		if scm.Namespace == "containers" {
			name = strings.TrimSuffix(name, "-container")
		}
		namespace := scm.Namespace
		if namespace != "" {
			namespace += "/"
		}
		params = append(params,
			"{rev}", scm.Revision,
			"{pkg_name}", name,
			"{pkg_namespace}", namespace,
		)
	}
	if strings.Contains(template, "{subject_id}") {
		params = append(params, "{subject_id}", strings.TrimPrefix(subject.Identifier(), "sha256:"))
	}
	if len(params) == 0 {
		return template, nil
	}
	return strings.NewReplacer(params...).Replace(template), nil
}

// subPolicies resolves the remote policy document for rule and returns its
// fragments relevant to parent together with the answers describing the
// lookup. Lookup failures never escape as errors; they become unsatisfied
// answers.
func (e *Evaluator) subPolicies(ctx context.Context, rule *RemoteRule, parent *Policy, subject *models.Subject) ([]*Policy, []Answer) {
	templates := e.remoteTemplates(rule, subject)
	if len(templates) == 0 {
		msg := fmt.Sprintf("Cannot use a remote rule for %s subject as it has not been configured", subject)
		return nil, []Answer{&FailedFetchGatingYaml{Subject: subject, Sources: []string{}, Error: msg}}
	}

	logger := e.logger.With(zap.String("subject_type", subject.Type()), zap.String("subject_identifier", subject.Identifier()))

	sources := []string{}
	var content []byte
	var source string
	found := false
	for _, template := range templates {
		url, err := e.renderURL(ctx, template, subject)
		if err != nil {
			if errors.Is(err, services.ErrNoSource) {
				logger.Warn("Skipping remote rule source", zap.String("template", template), zap.Error(err))
				continue
			}
			msg := err.Error()
			if errors.Is(err, services.ErrBuildNotFound) {
				msg = fmt.Sprintf("Koji build not found for %s", subject)
			}
			return nil, []Answer{&FailedFetchGatingYaml{Subject: subject, Sources: sources, Error: msg}}
		}

		sources = append(sources, url)
		data, ok, err := e.fetch(ctx, url)
		if err != nil {
			logger.Error("Failed to fetch remote rule file", zap.String("url", url), zap.Error(err))
			return nil, []Answer{&FailedFetchGatingYaml{Subject: subject, Sources: sources, Error: err.Error()}}
		}
		if ok {
			content, source, found = data, url, true
			break
		}
	}

	if !found {
		if rule.Required {
			return nil, []Answer{&MissingGatingYaml{Subject: subject, Sources: sources}}
		}
		return nil, nil
	}

	answers := []Answer{&FetchedGatingYaml{Subject: subject, Source: source}}
	policies, err := ParseRemotePolicies(content)
	if err != nil {
		logger.Info("Invalid remote rule file", zap.String("url", source), zap.Error(err))
		return nil, append(answers, &InvalidGatingYaml{
			Subject:  subject,
			TestCase: "invalid-gating-yaml",
			Details:  err.Error(),
			Source:   source,
		})
	}

	var selected []*Policy
	for _, sub := range policies {
		sub.Source = source
		if parent.matchesSubPolicy(sub) {
			selected = append(selected, sub)
		}
	}
	return selected, answers
}
