package subjects

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/release-engineering/greenwave-sub000/models"
	"gopkg.in/yaml.v3"
)

const subjectTypeTag = "!SubjectType"

// LoadDir loads every *.yaml subject type file in dir, in file name order
func LoadDir(dir string) ([]*models.SubjectType, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var types []*models.SubjectType
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		loaded, err := ParseSubjectTypes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		types = append(types, loaded...)
	}
	return types, nil
}

// ParseSubjectTypes parses a multi-document stream of !SubjectType objects
func ParseSubjectTypes(data []byte) ([]*models.SubjectType, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var types []*models.SubjectType
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("YAML Parser Error: %w", err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		t, err := decodeSubjectType(doc.Content[0])
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func decodeSubjectType(node *yaml.Node) (*models.SubjectType, error) {
	if node.Kind != yaml.MappingNode || (node.Tag != subjectTypeTag && node.Tag != "!!map") {
		return nil, fmt.Errorf("Expected mapping for %s tagged object", subjectTypeTag)
	}

	clone := *node
	clone.Tag = "!!map"
	var t models.SubjectType
	if err := clone.Decode(&t); err != nil {
		return nil, fmt.Errorf("SubjectType 'untitled': %w", err)
	}
	if t.ID == "" {
		return nil, errors.New("SubjectType 'untitled': Attribute 'id' is required")
	}

	matches := append(append([]models.ProductVersionMatch{}, t.ProductVersionMatch...), t.ProductVersionFromKojiBuildTarget...)
	for _, m := range matches {
		if _, err := regexp.Compile(m.Match); err != nil {
			return nil, fmt.Errorf("SubjectType %q: invalid product version match %q: %w", t.ID, m.Match, err)
		}
	}
	return &t, nil
}
