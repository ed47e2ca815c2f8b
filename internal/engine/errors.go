package engine

import (
	"errors"
	"fmt"
)

// MutationError reports a tracker create/update/resolve call that was
// rejected or failed. It is recorded per item in the apply report and
// never aborts the batch.
type MutationError struct {
	// Op is the mutation kind: "create", "update", "resolve", "section".
	Op string

	// Key is the item's stable identifier in the report: the task title
	// for creates, the board GID otherwise.
	Key string

	Cause error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Cause)
}

func (e *MutationError) Unwrap() error {
	return e.Cause
}

// IsMutation reports whether err is (or wraps) a MutationError.
func IsMutation(err error) bool {
	var me *MutationError
	return errors.As(err, &me)
}

// AmbiguousMatchError reports more than one existing item sharing a
// correlation title. Raised only under strict matching; the default policy
// picks the first item in list order and logs instead.
type AmbiguousMatchError struct {
	Title string
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match: %d items titled %q", e.Count, e.Title)
}

// IsAmbiguous reports whether err is (or wraps) an AmbiguousMatchError.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousMatchError
	return errors.As(err, &ae)
}
