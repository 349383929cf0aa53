package backend

import (
	"errors"
	"fmt"
)

// ErrTransport wraps network failures talking to the backend.
var ErrTransport = errors.New("backend transport failure")

// APIError is a server-reported failure: a non-2xx status or an error field
// in the payload.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
