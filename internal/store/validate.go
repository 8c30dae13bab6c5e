package store

import "github.com/tidwall/gjson"

// FieldCheck declares the expected JSON type at a path inside a stored record
type FieldCheck struct {
	Path string
	Kind FieldKind
}

// FieldKind is the expected JSON type of a checked field
type FieldKind int

const (
	KindNumber FieldKind = iota
	KindString
	KindArray
	KindObject
	KindBool
)

// GetValidated loads the record at key into v only if the stored blob is a
// JSON object and every present checked field has the expected type.
// A blob that fails validation is treated as absent: stored state written
// by an older or foreign version degrades to defaults instead of crashing
// the caller.
func (s *Store) GetValidated(key string, v any, checks ...FieldCheck) (bool, error) {
	raw, found, err := s.GetRaw(key)
	if err != nil || !found {
		return false, err
	}

	if !ValidShape(raw, checks...) {
		return false, nil
	}

	if _, err := s.Get(key, v); err != nil {
		return false, err
	}
	return true, nil
}

// ValidShape reports whether raw is a JSON object whose checked fields,
// where present, carry the expected types
func ValidShape(raw []byte, checks ...FieldCheck) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return false
	}

	for _, check := range checks {
		field := doc.Get(check.Path)
		if !field.Exists() {
			continue
		}
		if !kindMatches(field, check.Kind) {
			return false
		}
	}
	return true
}

func kindMatches(field gjson.Result, kind FieldKind) bool {
	switch kind {
	case KindNumber:
		return field.Type == gjson.Number
	case KindString:
		return field.Type == gjson.String
	case KindArray:
		return field.IsArray()
	case KindObject:
		return field.IsObject()
	case KindBool:
		return field.Type == gjson.True || field.Type == gjson.False
	}
	return false
}
