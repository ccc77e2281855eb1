package schema

import (
	"errors"
	"fmt"

	"github.com/BaSui01/intentflow/types"
)

// Causes carried by SchemaLoadError for documents that expand without bound.
var (
	ErrRecursiveAlias = errors.New("recursive alias")
	ErrTooManyNodes   = errors.New("document expands to too many nodes")
)

// SchemaLoadError reports a source that could not be read or parsed.
type SchemaLoadError struct {
	Source string
	Cause  error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("load schema %q: %v", e.Source, e.Cause)
}

func (e *SchemaLoadError) Unwrap() error { return e.Cause }

// Code returns the API error code for this failure.
func (e *SchemaLoadError) Code() types.ErrorCode { return types.ErrSchemaLoad }

// SchemaResolutionError reports a $ref that could not be replaced.
// Ref is the reference as written; Pointer locates the $ref node inside
// the document it appeared in.
type SchemaResolutionError struct {
	Source  string
	Ref     string
	Pointer string
	Reason  string
	Cause   error
}

func (e *SchemaResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %q at %s in %q: %s", e.Ref, displayPointer(e.Pointer), e.Source, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SchemaResolutionError) Unwrap() error { return e.Cause }

// Code returns the API error code for this failure.
func (e *SchemaResolutionError) Code() types.ErrorCode { return types.ErrSchemaResolution }

// OperationNotFoundError reports the first segment of the request-body
// traversal that is missing from the document.
type OperationNotFoundError struct {
	Path    string
	Method  string
	Segment string
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("operation %s %s: missing %q", e.Method, e.Path, e.Segment)
}

// Code returns the API error code for this failure.
func (e *OperationNotFoundError) Code() types.ErrorCode { return types.ErrOperationNotFound }

// Coded is implemented by every error in this package.
type Coded interface {
	error
	Code() types.ErrorCode
}

func displayPointer(p string) string {
	if p == "" {
		return "#"
	}
	return "#" + p
}
