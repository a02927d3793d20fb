package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/release-engineering/greenwave-sub000/models"
	"gopkg.in/yaml.v3"
)

// LoadError reports a policy document that failed to parse or validate
type LoadError struct {
	Message string
}

func (e *LoadError) Error() string {
	return e.Message
}

func newLoadError(msg string) *LoadError {
	return &LoadError{Message: msg}
}

func wrapLoadError(prefix string, err error) *LoadError {
	return newLoadError(prefix + ": " + err.Error())
}

var obsoleteRules = map[string]string{
	"!PackageSpecificBuild": `Please use the "packages" allowlist instead.`,
	"!FedoraAtomicCi":       `Please use the "packages" allowlist instead.`,
}

type policyDocument struct {
	ID               *string      `yaml:"id"`
	ProductVersions  *[]string    `yaml:"product_versions"`
	DecisionContext  string       `yaml:"decision_context"`
	DecisionContexts []string     `yaml:"decision_contexts"`
	SubjectType      *string      `yaml:"subject_type"`
	Rules            *[]yaml.Node `yaml:"rules"`
	ExcludedPackages []string     `yaml:"excluded_packages"`
	Packages         []string     `yaml:"packages"`
	RelevanceKey     string       `yaml:"relevance_key"`
	RelevanceValue   string       `yaml:"relevance_value"`
}

type ruleDocument struct {
	TestCaseName *string  `yaml:"test_case_name"`
	Scenario     *string  `yaml:"scenario"`
	ValidSince   *string  `yaml:"valid_since"`
	ValidUntil   *string  `yaml:"valid_until"`
	Required     *bool    `yaml:"required"`
	Sources      []string `yaml:"sources"`
}

// LoadDir loads every *.yaml policy file in dir, in file name order
func LoadDir(dir string) ([]*Policy, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var policies []*Policy
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		loaded, err := ParsePolicies(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		policies = append(policies, loaded...)
	}
	return policies, nil
}

// ParsePolicies parses a multi-document YAML stream of local policies
func ParsePolicies(data []byte) ([]*Policy, error) {
	return parseDocuments(data, KindLocal)
}

// ParseRemotePolicies parses a policy document fetched for a RemoteRule.
// Remote policies may omit id, product_versions and subject_type and must
// not delegate further.
func ParseRemotePolicies(data []byte) ([]*Policy, error) {
	return parseDocuments(data, KindRemote)
}

func parseDocuments(data []byte, kind Kind) ([]*Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var policies []*Policy
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newLoadError("YAML Parser Error: " + err.Error())
		}
		if len(doc.Content) == 0 {
			continue
		}
		// the root is read as !Policy whatever its tag
		p, err := decodePolicy(doc.Content[0], kind)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

func decodePolicy(node *yaml.Node, kind Kind) (*Policy, error) {
	if node.Kind != yaml.MappingNode {
		return nil, newLoadError("Expected mapping for !Policy tagged object")
	}

	var doc policyDocument
	if err := untagged(node).Decode(&doc); err != nil {
		return nil, wrapLoadError("Policy 'untitled'", err)
	}

	p := &Policy{
		DecisionContext:  doc.DecisionContext,
		DecisionContexts: doc.DecisionContexts,
		ExcludedPackages: doc.ExcludedPackages,
		Packages:         doc.Packages,
		RelevanceKey:     doc.RelevanceKey,
		RelevanceValue:   doc.RelevanceValue,
		Kind:             kind,
	}
	if doc.ID != nil {
		p.ID = *doc.ID
	}
	label := fmt.Sprintf("Policy %q", p.ID)
	if p.ID == "" {
		label = "Policy 'untitled'"
	}

	required := func(attr string) error {
		return newLoadError(fmt.Sprintf("%s: Attribute '%s' is required", label, attr))
	}

	if doc.ID == nil && kind == KindLocal {
		return nil, required("id")
	}

	switch {
	case doc.ProductVersions != nil:
		p.ProductVersions = *doc.ProductVersions
	case kind == KindLocal:
		return nil, required("product_versions")
	default:
		p.ProductVersions = []string{"*"}
	}

	switch {
	case doc.SubjectType != nil:
		p.SubjectType = *doc.SubjectType
	case kind == KindLocal:
		return nil, required("subject_type")
	default:
		p.SubjectType = DefaultRemoteSubjectType
	}

	if doc.Rules == nil {
		return nil, required("rules")
	}
	for _, ruleNode := range *doc.Rules {
		rule, err := decodeRule(&ruleNode)
		if err != nil {
			return nil, wrapLoadError(label+": Attribute 'rules'", err)
		}
		p.Rules = append(p.Rules, rule)
	}

	if err := p.Validate(); err != nil {
		return nil, wrapLoadError(label, err)
	}
	return p, nil
}

func decodeRule(node *yaml.Node) (Rule, error) {
	if advice, ok := obsoleteRules[node.Tag]; ok {
		return nil, newLoadError(fmt.Sprintf("%s is obsolete. %s", node.Tag, advice))
	}
	if node.Kind != yaml.MappingNode {
		return nil, newLoadError("Expected list of Rule objects")
	}

	var doc ruleDocument
	switch node.Tag {
	case "!PassingTestCaseRule", "!RemoteRule":
		if err := untagged(node).Decode(&doc); err != nil {
			return nil, wrapLoadError("YAML object "+node.Tag, err)
		}
	default:
		return nil, newLoadError("Expected list of Rule objects")
	}

	if node.Tag == "!RemoteRule" {
		rule := &RemoteRule{Sources: doc.Sources}
		if doc.Required != nil {
			rule.Required = *doc.Required
		}
		return rule, nil
	}

	if doc.TestCaseName == nil {
		return nil, newLoadError("YAML object !PassingTestCaseRule: Attribute 'test_case_name' is required")
	}
	rule := &PassingTestCaseRule{TestCaseName: *doc.TestCaseName}
	if doc.Scenario != nil {
		rule.Scenario = *doc.Scenario
	}
	var err error
	if doc.ValidSince != nil {
		if rule.ValidSince, err = parseRuleTime("valid_since", *doc.ValidSince); err != nil {
			return nil, wrapLoadError("YAML object !PassingTestCaseRule", err)
		}
	}
	if doc.ValidUntil != nil {
		if rule.ValidUntil, err = parseRuleTime("valid_until", *doc.ValidUntil); err != nil {
			return nil, wrapLoadError("YAML object !PassingTestCaseRule", err)
		}
	}
	return rule, nil
}

func parseRuleTime(attr, value string) (*time.Time, error) {
	t, err := models.ParseTimestamp(value)
	if err != nil {
		return nil, newLoadError(fmt.Sprintf("Attribute '%s': Could not parse string as date/time, got: %s", attr, value))
	}
	return &t, nil
}

// untagged returns a copy of node without its application tag so it
// decodes as a plain mapping
func untagged(node *yaml.Node) *yaml.Node {
	clone := *node
	clone.Tag = "!!map"
	return &clone
}
