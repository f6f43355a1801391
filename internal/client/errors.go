package client

import (
	"errors"
	"fmt"
)

var (
	ErrConnection    = errors.New("cannot connect to log server")
	ErrCommunication = errors.New("communication with log server failed")
)

// ComError is returned once the connection to the server is no longer
// usable. It matches both ErrCommunication and the underlying cause.
type ComError struct {
	Op  string
	Err error
}

func (e *ComError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCommunication, e.Op, e.Err)
}

func (e *ComError) Unwrap() []error {
	return []error{ErrCommunication, e.Err}
}
