package apperror

import "fmt"

// Op is the kind of store access that was refused.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// PermissionError reports that the document store rejected an operation on Path.
//
// Path uses the document layout shared by all backends: users/{uid} for the
// profile and users/{uid}/waterLogs/{id} for log entries.
type PermissionError struct {
	Path string
	Op   Op
	Err  error // the backend's own error, may be nil
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permission denied: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("permission denied: %s %s", e.Op, e.Path)
}

// Is lets errors.Is(err, ErrPermission) match any *PermissionError.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermission
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Permission builds a *PermissionError for path.
func Permission(path string, op Op, cause error) *PermissionError {
	return &PermissionError{Path: path, Op: op, Err: cause}
}
