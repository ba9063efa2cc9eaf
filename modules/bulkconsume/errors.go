package bulkconsume

import "fmt"

// ClientError is a client-facing 400: a malformed request, a decode
// failure, or a conflict between cursor-owned parameters and query
// parameters.
type ClientError struct {
	msg string
}

func (e *ClientError) Error() string { return e.msg }

func clientErrorf(format string, args ...any) *ClientError {
	return &ClientError{msg: fmt.Sprintf(format, args...)}
}
