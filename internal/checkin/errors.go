package checkin

import (
	"errors"
	"fmt"
)

// Verification failures are terminal for the scan attempt; the student
// re-scans with a fresh token. None are retried by the engine itself.
var (
	ErrSessionClosed       = errors.New("session is not open for check-in")
	ErrTokenExpired        = errors.New("token has expired, scan the current code")
	ErrTokenMismatch       = errors.New("token is no longer the active code, scan again")
	ErrIdentityMissing     = errors.New("student identity required")
	ErrLocationUnavailable = errors.New("location required for this class but not provided")
)

// GeofenceError rejects a scan whose submitted coordinates fall outside
// the configured radius. The message carries the measured distance.
type GeofenceError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("you are %.0f m from the classroom, allowed radius is %.0f m", e.DistanceMeters, e.RadiusMeters)
}
