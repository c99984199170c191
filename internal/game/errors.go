package game

import "errors"

// Error categories. Every error returned by this package wraps exactly one of
// them, so callers classify with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrViewerNotInSession = errors.New("viewer not in session")
	ErrDependency         = errors.New("dependency failure")
	ErrInvalidArgument    = errors.New("invalid argument")
)

var (
	ErrSessionNotFound = wrap(ErrNotFound, "session not found")
	ErrPlayerNotFound  = wrap(ErrNotFound, "player not in session")
	ErrCardNotFound    = wrap(ErrNotFound, "card not found")
	ErrUserNotFound    = wrap(ErrNotFound, "user not found")
	ErrDeckNotFound    = wrap(ErrNotFound, "deck not found")

	ErrGameAlreadyStarted = wrap(ErrInvalidState, "game already started")
	ErrGameNotStarted     = wrap(ErrInvalidState, "game not started")
	ErrNotReady           = wrap(ErrInvalidState, "not every player is ready")
	ErrSessionFull        = wrap(ErrInvalidState, "session is full")
	ErrAlreadyJoined      = wrap(ErrInvalidState, "player already joined")
	ErrDeckRequired       = wrap(ErrInvalidState, "a deck must be selected first")
	ErrNotHost            = wrap(ErrInvalidState, "only the host can do this")

	ErrDeckBinding = wrap(ErrInvalidArgument, "deck has no cards")
)

type categorizedError struct {
	category error
	msg      string
}

func (e *categorizedError) Error() string { return e.msg }
func (e *categorizedError) Unwrap() error { return e.category }

func wrap(category error, msg string) error {
	return &categorizedError{category: category, msg: msg}
}

// Category returns the category sentinel err belongs to, or nil when err did
// not originate from this package.
func Category(err error) error {
	for _, c := range []error{ErrNotFound, ErrInvalidState, ErrViewerNotInSession, ErrDependency, ErrInvalidArgument} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}
