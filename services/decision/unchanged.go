package decision

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

var requirementKeys = []string{"satisfied_requirements", "unsatisfied_requirements"}

// Unchanged reports whether two decisions are equal apart from the result
// ids of their requirements. The decisions are the JSON objects returned
// to callers.
func Unchanged(before, after map[string]any) (bool, error) {
	a, err := canonical(withoutResultIDs(before))
	if err != nil {
		return false, err
	}
	b, err := canonical(withoutResultIDs(after))
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}

// Fingerprint returns the sha256 of the canonical JSON form of a decision
func Fingerprint(decision map[string]any) (string, error) {
	data, err := canonical(decision)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func canonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decision: %w", err)
	}
	out, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize decision: %w", err)
	}
	return out, nil
}

// withoutResultIDs returns a shallow copy of decision with result_id removed
// from every requirement
func withoutResultIDs(decision map[string]any) map[string]any {
	out := make(map[string]any, len(decision))
	for k, v := range decision {
		out[k] = v
	}
	for _, key := range requirementKeys {
		items, ok := decision[key].([]any)
		if !ok {
			continue
		}
		stripped := make([]any, 0, len(items))
		for _, item := range items {
			req, ok := item.(map[string]any)
			if !ok {
				stripped = append(stripped, item)
				continue
			}
			copied := make(map[string]any, len(req))
			for k, v := range req {
				if k != "result_id" {
					copied[k] = v
				}
			}
			stripped = append(stripped, copied)
		}
		out[key] = stripped
	}
	return out
}
