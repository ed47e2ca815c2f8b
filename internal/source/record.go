package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/Peter-Willmott/asana-updater/internal/task"
)

// Record is one raw record from an external system of record (an upload, a
// survey, a pull request). The shape is opaque - an untyped field mapping -
// because the providers return whatever the upstream API sends; normalizers
// reach into it through the typed accessors below.
//
// A Record is immutable for the duration of one reconciliation pass.
type Record map[string]any

// NormalizationError reports a malformed value in a source record (bad
// timestamp, wrong type, missing required field). The policy is per-record:
// skip the record, log, continue the batch.
type NormalizationError struct {
	Field string
	Cause error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize field %q: %v", e.Field, e.Cause)
}

func (e *NormalizationError) Unwrap() error {
	return e.Cause
}

// IsNormalization reports whether err is (or wraps) a NormalizationError.
func IsNormalization(err error) bool {
	var ne *NormalizationError
	return errors.As(err, &ne)
}

func normErr(field, format string, args ...any) error {
	return &NormalizationError{Field: field, Cause: fmt.Errorf(format, args...)}
}

// String returns the field as a string. Missing or nil yields "".
// Non-string values are an error: the feeds never stringify numbers.
func (r Record) String(field string) (string, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", normErr(field, "expected string, got %T", v)
	}
	return s, nil
}

// MustString returns the field as a string, erroring when absent.
func (r Record) MustString(field string) (string, error) {
	s, err := r.String(field)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", normErr(field, "required field missing")
	}
	return s, nil
}

// Int returns the field as an int64. JSON decoding yields float64 for
// numerics, so both forms are accepted. Missing or nil yields 0.
func (r Record) Int(field string) (int64, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, normErr(field, "expected number, got %T", v)
	}
}

// Float returns the field as a float64. Missing or nil yields 0.
func (r Record) Float(field string) (float64, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, normErr(field, "expected number, got %T", v)
	}
}

// Bool returns the field as a bool. Missing or nil yields false.
func (r Record) Bool(field string) (bool, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, normErr(field, "expected bool, got %T", v)
	}
	return b, nil
}

// Time returns the field parsed to UTC second precision, or nil when the
// field is absent or null. Malformed timestamps are a NormalizationError
// naming the field.
func (r Record) Time(field string) (*time.Time, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, normErr(field, "expected timestamp string, got %T", v)
	}
	if s == "" {
		return nil, nil
	}
	t, err := task.ParseTimestamp(s)
	if err != nil {
		return nil, &NormalizationError{Field: field, Cause: err}
	}
	return &t, nil
}

// Has reports whether the field is present and non-nil.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Records returns a nested list-of-objects field as Records.
// Missing or nil yields an empty slice.
func (r Record) Records(field string) ([]Record, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []Record:
		return list, nil
	case []any:
		out := make([]Record, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, normErr(field, "element %d: expected object, got %T", i, item)
			}
			out = append(out, Record(m))
		}
		return out, nil
	default:
		return nil, normErr(field, "expected list, got %T", v)
	}
}
