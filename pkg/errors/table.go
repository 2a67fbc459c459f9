package errors

// TableError is a specialized error type for sorted-table operations —
// writing, opening, or scanning a `.sst` file. It embeds baseError to
// inherit the standard error functionality and adds the location context
// needed to point at exactly which table and offset misbehaved.
type TableError struct {
	*baseError
	path   string
	offset int64
}

// NewTableError creates a new sorted-table-specific error.
func NewTableError(err error, code ErrorCode, msg string) *TableError {
	return &TableError{baseError: NewBaseError(err, code, msg)}
}

// WithPath records which table file was being processed.
func (te *TableError) WithPath(path string) *TableError {
	te.path = path
	return te
}

// WithOffset records the byte offset within the table where the error
// occurred, when known.
func (te *TableError) WithOffset(offset int64) *TableError {
	te.offset = offset
	return te
}

// WithDetail adds contextual information while maintaining the TableError type.
func (te *TableError) WithDetail(key string, value any) *TableError {
	te.baseError.WithDetail(key, value)
	return te
}

// Path returns the table file path involved in the error.
func (te *TableError) Path() string {
	return te.path
}

// Offset returns the byte offset within the table where the error occurred.
func (te *TableError) Offset() int64 {
	return te.offset
}
