package domain

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable marks a fetch failure for one source (network, auth,
// quota). It is isolated to that source and feeds its backoff; it never
// aborts the round.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrRunInProgress is returned when a manual refresh overlaps an in-flight
// run for the same source class. The caller is told, nothing is queued.
var ErrRunInProgress = errors.New("run already in progress for class")

// ErrGeocodeUnavailable marks a geocoder outage or quota exhaustion. Events
// hit by it stay unresolved and are retained.
var ErrGeocodeUnavailable = errors.New("geocoder unavailable")

// MalformedItemError marks a raw item that cannot be normalized because a
// required field is missing. Malformed items are counted and dropped, not
// propagated as pipeline errors.
type MalformedItemError struct {
	Source string
	Reason string
}

func (e *MalformedItemError) Error() string {
	return fmt.Sprintf("malformed item from %s: %s", e.Source, e.Reason)
}

// IsMalformed reports whether err is a MalformedItemError.
func IsMalformed(err error) bool {
	var m *MalformedItemError
	return errors.As(err, &m)
}
