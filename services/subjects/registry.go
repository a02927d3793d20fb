package subjects

import (
	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services"
)

// ErrUnknownSubjectData is returned when no subject can be built from a
// subject description
var ErrUnknownSubjectData = services.NewValidationError("Could not detect subject_identifier.")

// Registry holds the configured subject types
type Registry struct {
	types []*models.SubjectType
}

// NewRegistry creates a registry of the given types, in lookup order
func NewRegistry(types []*models.SubjectType) *Registry {
	return &Registry{types: types}
}

// Types returns the configured subject types
func (r *Registry) Types() []*models.SubjectType {
	return r.types
}

// Lookup returns the configured type with the given id or alias
func (r *Registry) Lookup(id string) (*models.SubjectType, bool) {
	for _, t := range r.types {
		if t.Matches(id) {
			return t, true
		}
	}
	return nil, false
}

// Create returns a subject of the given type. Unconfigured type ids get a
// generic type.
func (r *Registry) Create(typeID, identifier string) *models.Subject {
	t, ok := r.Lookup(typeID)
	if !ok {
		t = models.NewGenericSubjectType(typeID)
	}
	return models.NewSubject(t, identifier)
}

// FromData builds a subject from a decision request subject entry or from
// ResultsDB result data. Each configured type is tried by its item_key;
// "type" and "item" are used as a fallback.
func (r *Registry) FromData(data map[string]any) (*models.Subject, error) {
	typeID := stringValue(data["type"])

	for _, t := range r.types {
		if typeID != "" && t.ID != typeID {
			continue
		}
		if t.ItemKey == "" {
			continue
		}
		if item := stringValue(data[t.ItemKey]); item != "" {
			return models.NewSubject(t, item), nil
		}
	}

	if item := stringValue(data["item"]); typeID != "" && item != "" {
		return r.Create(typeID, item), nil
	}
	return nil, ErrUnknownSubjectData
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
