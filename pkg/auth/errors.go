package auth

import "errors"

var (
	// ErrUnauthenticated is matched by every error returned from Require.
	ErrUnauthenticated = errors.New("auth: not logged in or session expired")

	// ErrBanned is additionally matched when Require fails during a lockout.
	ErrBanned = errors.New("auth: locked out after too many failed attempts")

	// ErrInvalidSession is returned by Logout for a token that is not the active one.
	ErrInvalidSession = errors.New("auth: invalid session, logout refused")

	// ErrNotConfigured means the admin password is missing or blank.
	ErrNotConfigured = errors.New("auth: admin password is not configured")
)

// AuthError is returned by Require. Message is safe to show to the user.
type AuthError struct {
	Banned        bool
	NotConfigured bool
	Message       string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Message
}

// Is lets errors.Is match ErrUnauthenticated always, ErrBanned during a
// lockout and ErrNotConfigured when no admin password is set.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return true
	case ErrBanned:
		return e.Banned
	case ErrNotConfigured:
		return e.NotConfigured
	}
	return false
}
