package mdm

import (
	"errors"
	"fmt"
)

// ErrNoFix is returned when the vendor has no complete latitude/longitude pair on file.
var ErrNoFix = errors.New("location not available from MDM")

// StatusError reports a vendor response with an unexpected HTTP status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.StatusCode)
}
