package violationsync

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is wrapped by a TransportError when the API answers 429.
	ErrRateLimited = errors.New("dol api rate limit exceeded")
	// ErrCircuitOpen is returned without touching the network while the breaker is open.
	ErrCircuitOpen = errors.New("dol api circuit open")

	ErrInspectionNotFound = errors.New("inspection not found")
)

// TransportError is a failed request to the enforcement API: a non-2xx status,
// a network failure or an undecodable body. StatusCode is 0 when no response arrived.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dol api error %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dol api request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err came from talking to the API rather than from storage.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrCircuitOpen)
}
