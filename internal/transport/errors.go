package transport

import "fmt"

// ConnectionError reports a connection-level failure: establishing,
// probing, or re-establishing the backend link.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport connection to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// OperationError reports a single failed operation on a live connection.
// It is not retried at this layer.
type OperationError struct {
	Op   string
	Path string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func opErr(op, path string, err error) error {
	return &OperationError{Op: op, Path: path, Err: err}
}
