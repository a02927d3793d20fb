package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Subject identifies the artifact a decision is made for. It is immutable
// once created.
type Subject struct {
	subjectType *SubjectType
	item        string
}

// NewSubject creates a Subject of the given type
func NewSubject(subjectType *SubjectType, item string) *Subject {
	return &Subject{subjectType: subjectType, item: item}
}

// Type returns the canonical subject type id
func (s *Subject) Type() string {
	return s.subjectType.ID
}

// SubjectType returns the full type definition
func (s *Subject) SubjectType() *SubjectType {
	return s.subjectType
}

// Identifier returns the subject identifier (ResultsDB "item")
func (s *Subject) Identifier() string {
	return s.item
}

// PackageName returns the package part of an NVR identifier
func (s *Subject) PackageName() (string, bool) {
	if !s.subjectType.IsNVR {
		return "", false
	}
	parts := rsplit(s.item, "-", 2)
	return parts[0], true
}

// ShortProductVersion returns the dist tag of an NVR identifier, e.g. "fc38"
func (s *Subject) ShortProductVersion() (string, bool) {
	if !s.subjectType.IsNVR {
		return "", false
	}
	parts := rsplit(s.item, "-", 2)
	if len(parts) != 3 {
		return "", false
	}
	release := rsplit(parts[2], ".", 1)
	if len(release) != 2 {
		return "", false
	}
	return release[1], true
}

// ProductVersions returns product versions configured for the subject type,
// either derived from the identifier or fixed.
func (s *Subject) ProductVersions() []string {
	for _, m := range s.subjectType.ProductVersionMatch {
		if pv := substitute(m, s.item); pv != "" && pv != s.item {
			return []string{strings.ToLower(pv)}
		}
	}
	if s.subjectType.ProductVersion != "" {
		return []string{s.subjectType.ProductVersion}
	}
	return nil
}

// ProductVersionsFromKojiBuildTarget applies every matching target
// substitution of the type, e.g. "rhel-8.5.0-candidate" may yield both
// "rhel-8" and "rhel-8.5".
func (s *Subject) ProductVersionsFromKojiBuildTarget(target string) []string {
	var pvs []string
	seen := make(map[string]bool)
	for _, m := range s.subjectType.ProductVersionFromKojiBuildTarget {
		pv := strings.ToLower(substitute(m, target))
		if pv == "" || pv == strings.ToLower(target) || seen[pv] {
			continue
		}
		seen[pv] = true
		pvs = append(pvs, pv)
	}
	return pvs
}

// IsKojiBuild reports whether the identifier is a Koji build NVR
func (s *Subject) IsKojiBuild() bool {
	return s.subjectType.IsKojiBuild
}

// SupportsRemoteRule reports whether RemoteRule delegation applies
func (s *Subject) SupportsRemoteRule() bool {
	return s.subjectType.RemoteRuleSupported()
}

// IgnoreMissingPolicy reports whether a missing policy is not an error
func (s *Subject) IgnoreMissingPolicy() bool {
	return s.subjectType.IgnoreMissingPolicy
}

// ToMap returns the legacy "item" representation of the subject
func (s *Subject) ToMap() map[string]string {
	if s.subjectType.ItemDict != nil {
		return itemDictToMap(*s.subjectType.ItemDict, s.item)
	}
	return map[string]string{"type": s.Type(), "item": s.item}
}

// ResultQueries returns one parameter set per physical ResultsDB query
// backing this subject.
func (s *Subject) ResultQueries() []map[string]string {
	if len(s.subjectType.ResultQueries) > 0 {
		queries := make([]map[string]string, 0, len(s.subjectType.ResultQueries))
		for _, q := range s.subjectType.ResultQueries {
			queries = append(queries, itemDictToMap(q, s.item))
		}
		return queries
	}
	return []map[string]string{s.ToMap()}
}

func (s *Subject) String() string {
	return fmt.Sprintf("subject_type %q, subject_identifier %q", s.Type(), s.item)
}

func itemDictToMap(d ItemDict, item string) map[string]string {
	result := make(map[string]string, len(d.Keys)+1)
	if d.ItemKey != "" {
		result[d.ItemKey] = item
	}
	for k, v := range d.Keys {
		result[k] = v
	}
	return result
}

func substitute(m ProductVersionMatch, value string) string {
	re, err := regexp.Compile(m.Match)
	if err != nil {
		return ""
	}
	return re.ReplaceAllString(value, pythonGroups.ReplaceAllString(m.ProductVersion, "$${$1}"))
}

// pythonGroups converts \1 style back-references into Go's ${1} form
var pythonGroups = regexp.MustCompile(`\\(\d+)`)

// rsplit splits s on sep from the right, at most n times.
func rsplit(s, sep string, n int) []string {
	parts := []string{}
	for i := 0; i < n; i++ {
		idx := strings.LastIndex(s, sep)
		if idx < 0 {
			break
		}
		parts = append([]string{s[idx+len(sep):]}, parts...)
		s = s[:idx]
	}
	return append([]string{s}, parts...)
}
