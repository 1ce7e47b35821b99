// Package types defines error types for the translation shim.
package types

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound    = errors.New("no such file or directory")
	ErrExists      = errors.New("file exists")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")
	ErrEscapesRoot = errors.New("path escapes mount root")
	ErrInvalidPath = errors.New("invalid path")
	ErrUnsupported = errors.New("operation not supported by host")
	ErrReadOnly    = errors.New("read-only mount")
	ErrExcluded    = errors.New("path is excluded")
)

// OpError records an operation and the virtual path it failed on.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
