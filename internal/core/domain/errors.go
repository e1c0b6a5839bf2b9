package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so the transport layer can pick a status
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindValidation   ErrorKind = "VALIDATION"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindInternal     ErrorKind = "INTERNAL"
)

// Error is the error type returned by every core service
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new domain error
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Internal wraps an infrastructure failure. The message shown to callers is generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", cause: err}
}

// KindOf returns the kind of err, KindInternal when err is not a domain error
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// PublicMessage returns the text that may be shown to a caller
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}
	return "internal server error"
}

// Common domain errors
var (
	ErrNotFound       = NewError(KindNotFound, "resource not found")
	ErrInvalidInput   = NewError(KindValidation, "invalid input")
	ErrUnauthorized   = NewError(KindUnauthorized, "unauthorized")
	ErrForbidden      = NewError(KindForbidden, "you don't have permission to perform this action")
	ErrNoAssignment   = NewError(KindForbidden, "you are not assigned to this business unit")
	ErrDuplicateEntry = NewError(KindConflict, "duplicate entry")
)

// Workflow errors
var (
	ErrWorkflowNotFound      = NewError(KindNotFound, "approval workflow not found")
	ErrWorkflowNameTaken     = NewError(KindConflict, "a workflow with this name already exists")
	ErrWorkflowNoSteps       = NewError(KindValidation, "workflow must have at least one step")
	ErrStepOrderInvalid      = NewError(KindValidation, "step orders must be a contiguous sequence starting at 1")
	ErrStepRoleNotFound      = NewError(KindValidation, "one or more step roles do not exist")
	ErrWorkflowHasActive     = NewError(KindConflict, "cannot modify steps while active requests exist")
	ErrWorkflowInUse         = NewError(KindConflict, "workflow has approval requests; deactivate it instead")
	ErrWorkflowInactive      = NewError(KindValidation, "approval workflow is not active")
	ErrWorkflowNotConfigured = NewError(KindValidation, "no active approval workflow is configured for this request type; contact an administrator")
	ErrOverrideLevelInvalid  = NewError(KindValidation, "override minimum level must be between 0 and 4")
	ErrEntityTypeMismatch    = NewError(KindValidation, "workflow does not govern this entity type")
	ErrEntityTypeManaged     = NewError(KindValidation, "requests for this entity type are opened through the movement endpoints")
)

// Approval request errors
var (
	ErrRequestNotFound     = NewError(KindNotFound, "approval request not found")
	ErrRequestNotPending   = NewError(KindValidation, "approval request is not pending")
	ErrRequestExists       = NewError(KindConflict, "an active approval request already exists for this entity")
	ErrWrongStep           = NewError(KindValidation, "this step is not awaiting a response")
	ErrNotStepApprover     = NewError(KindForbidden, "you are not authorized to respond to this step")
	ErrOverrideNotAllowed  = NewError(KindForbidden, "override is not permitted for this step")
	ErrOverrideLevelTooLow = NewError(KindForbidden, "your role level is not sufficient to override this step")
	ErrNotRequester        = NewError(KindForbidden, "only the requester can cancel this request")
	ErrInvalidResponse     = NewError(KindValidation, "response status must be APPROVED or REJECTED")
)

// Role errors
var (
	ErrRoleNotFound       = NewError(KindNotFound, "role not found")
	ErrRoleNameTaken      = NewError(KindConflict, "a role with this name already exists")
	ErrRoleHasMembers     = NewError(KindConflict, "role still has assigned members")
	ErrRoleInUse          = NewError(KindConflict, "role is referenced by approval workflow steps")
	ErrDuplicateModule    = NewError(KindValidation, "each module may appear only once per role")
	ErrUnknownModule      = NewError(KindValidation, "unknown permission module")
	ErrInvalidRoleLevel   = NewError(KindValidation, "role level must be between 0 and 4")
	ErrAssignmentExists   = NewError(KindConflict, "user already has this assignment")
	ErrAssignmentNotFound = NewError(KindNotFound, "assignment not found")
)

// User and auth errors
var (
	ErrUserNotFound         = NewError(KindNotFound, "user not found")
	ErrUserAlreadyExists    = NewError(KindConflict, "username or email already exists")
	ErrInvalidCredentials   = NewError(KindUnauthorized, "invalid username or password")
	ErrUserInactive         = NewError(KindForbidden, "user account is inactive")
	ErrTokenInvalid         = NewError(KindUnauthorized, "invalid token")
	ErrTokenExpired         = NewError(KindUnauthorized, "token expired")
	ErrTokenRevoked         = NewError(KindUnauthorized, "token revoked")
	ErrBusinessUnitNotFound = NewError(KindNotFound, "business unit not found")
)

// Property and movement errors
var (
	ErrPropertyNotFound    = NewError(KindNotFound, "property not found")
	ErrPropertyCodeTaken   = NewError(KindConflict, "a property with this code already exists")
	ErrPropertyNotEligible = NewError(KindValidation, "property status does not allow this movement")
	ErrMovementExists      = NewError(KindConflict, "property already has an active movement of this kind")
	ErrMovementNotFound    = NewError(KindNotFound, "movement not found")
	ErrMovementNotApproved = NewError(KindValidation, "movement has not been approved")
	ErrUnknownMovementKind = NewError(KindValidation, "unknown movement kind")
)
