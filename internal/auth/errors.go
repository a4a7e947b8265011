package auth

import "errors"

var (
	ErrNoToken         = errors.New("token not provided")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidIdentity = errors.New("invalid user id")
	ErrUnknownUser     = errors.New("user not found")
	ErrLookupFailed    = errors.New("user lookup failed")
)

// AdmissionError rejects a connection attempt. Err is one of the sentinels
// above; Cause carries the underlying failure, if any, for logs.
type AdmissionError struct {
	Err   error
	Cause error
}

func (e *AdmissionError) Error() string {
	return "Authentication error: " + e.Err.Error()
}

func (e *AdmissionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func reject(sentinel, cause error) *AdmissionError {
	return &AdmissionError{Err: sentinel, Cause: cause}
}
