package patch

import "fmt"

// ApplyError reports a structural mismatch while applying a patch: the
// path no longer exists, or its expected shape (array vs. object)
// differs from what the patch assumes. It wraps the underlying cause so
// callers can still errors.Is/errors.As through to it.
type ApplyError struct {
	Op    Op
	Path  string
	Cause error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch apply: %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *ApplyError) Unwrap() error {
	return e.Cause
}

func newApplyError(op Op, path Pointer, cause error) error {
	return &ApplyError{Op: op, Path: path.String(), Cause: cause}
}
