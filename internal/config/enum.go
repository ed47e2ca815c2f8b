package config

import (
	"errors"
	"fmt"
	"sort"
)

// EnumMap translates domain-level enumeration values into tracker enum
// option GIDs, per custom field. Pure lookup, no I/O.
type EnumMap map[string]map[string]string

// UnknownEnumError reports a domain value with no tracker-side mapping.
// Tracker schemas drift independently of source schemas, so callers treat
// this as non-fatal for the record: log, omit the field, continue.
type UnknownEnumError struct {
	Field string
	Value string
}

func (e *UnknownEnumError) Error() string {
	return fmt.Sprintf("no tracker mapping for value %q of field %q", e.Value, e.Field)
}

// IsUnknownEnum reports whether err is (or wraps) an UnknownEnumError.
func IsUnknownEnum(err error) bool {
	var ue *UnknownEnumError
	return errors.As(err, &ue)
}

// Map resolves a domain value for a field to its tracker enum option GID.
func (m EnumMap) Map(field, value string) (string, error) {
	options, ok := m[field]
	if !ok {
		return "", &UnknownEnumError{Field: field, Value: value}
	}
	gid, ok := options[value]
	if !ok {
		return "", &UnknownEnumError{Field: field, Value: value}
	}
	return gid, nil
}

// MapBool resolves a yes/no flag through the field's Yes/No options.
func (m EnumMap) MapBool(field string, v bool) (string, error) {
	if v {
		return m.Map(field, "Yes")
	}
	return m.Map(field, "No")
}

// Fields returns the mapped field names in sorted order. Used by validate
// output.
func (m EnumMap) Fields() []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
