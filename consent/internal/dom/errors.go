package dom

import "errors"

// Fault sentinels. Drivers wrap raw driver errors so callers can classify
// them with errors.Is.
var (
	ErrTimeout         = errors.New("dom: timeout")
	ErrUnreachable     = errors.New("dom: unreachable")
	ErrStale           = errors.New("dom: stale element")
	ErrNotFound        = errors.New("dom: element not found")
	ErrNotInteractable = errors.New("dom: element not interactable")
	// ErrSessionDead means the browser session is gone. It is the only
	// fault that escapes a visit.
	ErrSessionDead = errors.New("dom: session invalid")
)

// IsFatal reports whether err invalidates the whole session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionDead)
}
