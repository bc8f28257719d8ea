package concept

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound marks a lookup for a concept id that is not in the store.
	ErrNotFound = errors.New("concept not found")

	// ErrInvalidQuery marks a malformed request rejected before it reaches
	// the store (blank term, negative separation, out-of-range threshold).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrStoreUnavailable marks backing-data failures. It always propagates
	// unchanged; no layer retries behind the caller's back.
	ErrStoreUnavailable = errors.New("vocabulary store unavailable")
)

// NotFoundError aggregates every concept id that failed to resolve in a
// batch lookup. errors.Is(err, ErrNotFound) matches it.
type NotFoundError struct {
	IDs []int64
}

func (e *NotFoundError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("concepts not found: %s", strings.Join(ids, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
