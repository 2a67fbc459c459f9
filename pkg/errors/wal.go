package errors

// WALError is a specialized error type for write-ahead-log operations.
// It embeds baseError and adds the log path, since a WAL failure is
// almost always diagnosed by "which file, doing what".
type WALError struct {
	*baseError
	path string
}

// NewWALError creates a new WAL-specific error.
func NewWALError(err error, code ErrorCode, msg string) *WALError {
	return &WALError{baseError: NewBaseError(err, code, msg)}
}

// WithPath records which WAL file was being processed.
func (we *WALError) WithPath(path string) *WALError {
	we.path = path
	return we
}

// WithDetail adds contextual information while maintaining the WALError type.
func (we *WALError) WithDetail(key string, value any) *WALError {
	we.baseError.WithDetail(key, value)
	return we
}

// Path returns the WAL file path involved in the error.
func (we *WALError) Path() string {
	return we.path
}
