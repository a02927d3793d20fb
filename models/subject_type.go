package models

// ProductVersionMatch is a regular expression substitution that derives a
// product version from a subject identifier or a Koji build target.
type ProductVersionMatch struct {
	Match          string `yaml:"match" json:"match"`
	ProductVersion string `yaml:"product_version" json:"product_version"`
}

// ItemDict describes how an identifier is turned into ResultsDB query
// parameters: the identifier goes under ItemKey, Keys are added verbatim.
type ItemDict struct {
	ItemKey string            `yaml:"item_key,omitempty" json:"item_key,omitempty"`
	Keys    map[string]string `yaml:"keys,omitempty" json:"keys,omitempty"`
}

// SubjectType represents a configured kind of gated artifact
type SubjectType struct {
	ID                                string                `yaml:"id" json:"id"`
	Aliases                           []string              `yaml:"aliases,omitempty" json:"aliases"`
	ItemKey                           string                `yaml:"item_key,omitempty" json:"item_key,omitempty"`
	IsKojiBuild                       bool                  `yaml:"is_koji_build,omitempty" json:"is_koji_build"`
	IsNVR                             bool                  `yaml:"is_nvr,omitempty" json:"is_nvr"`
	IgnoreMissingPolicy               bool                  `yaml:"ignore_missing_policy,omitempty" json:"ignore_missing_policy"`
	SupportsRemoteRule                *bool                 `yaml:"supports_remote_rule,omitempty" json:"supports_remote_rule,omitempty"`
	ProductVersionMatch               []ProductVersionMatch `yaml:"product_version_match,omitempty" json:"product_version_match,omitempty"`
	ProductVersionFromKojiBuildTarget []ProductVersionMatch `yaml:"product_version_from_koji_build_target,omitempty" json:"product_version_from_koji_build_target,omitempty"`
	ProductVersion                    string                `yaml:"product_version,omitempty" json:"product_version,omitempty"`
	ItemDict                          *ItemDict             `yaml:"item_dict,omitempty" json:"item_dict,omitempty"`
	ResultQueries                     []ItemDict            `yaml:"result_queries,omitempty" json:"result_queries,omitempty"`
}

// NewGenericSubjectType returns the type used for identifiers of an
// unconfigured subject type.
func NewGenericSubjectType(id string) *SubjectType {
	return &SubjectType{
		ID:          id,
		IsKojiBuild: true,
		IsNVR:       false,
	}
}

// Matches reports whether id names this type directly or through an alias
func (t *SubjectType) Matches(id string) bool {
	if id == t.ID {
		return true
	}
	for _, alias := range t.Aliases {
		if alias == id {
			return true
		}
	}
	return false
}

// RemoteRuleSupported defaults to true when the document does not say otherwise
func (t *SubjectType) RemoteRuleSupported() bool {
	if t.SupportsRemoteRule == nil {
		return true
	}
	return *t.SupportsRemoteRule
}
