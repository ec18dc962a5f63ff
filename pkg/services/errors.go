// Package services provides the business layer over the approval workflow
// core: template administration and the approval query/send surface.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrTemplateNil         = errors.New("template cannot be nil")
	ErrDisplayNameRequired = errors.New("template display name is required")
	ErrDocTypeCodeRequired = errors.New("template document type code is required")
	ErrNodesRequired       = errors.New("template must have at least one node")
	ErrApproverRequired    = errors.New("every template node must list at least one approver")
	ErrDanglingNext        = errors.New("template node references a next node that does not exist")
	ErrChainNotLinear      = errors.New("template nodes must form a single linear chain")
	ErrDuplicateNodeID     = errors.New("template node ids must be unique")
	ErrEmptyOperatorID     = errors.New("operator id cannot be empty")
	ErrEmptyDocID          = errors.New("document id cannot be empty")
	ErrActorRequired       = errors.New("actor identity is required")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrDisplayNameRequired) ||
		errors.Is(err, ErrDocTypeCodeRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrApproverRequired) ||
		errors.Is(err, ErrDanglingNext) ||
		errors.Is(err, ErrChainNotLinear) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrEmptyOperatorID) ||
		errors.Is(err, ErrEmptyDocID) ||
		errors.Is(err, ErrActorRequired)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
