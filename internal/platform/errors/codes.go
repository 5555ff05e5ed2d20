// Package errors provides structured domain errors with gRPC status mapping.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Ticket errors
	CodeTicketDescriptionEmpty Code = "TICKET_DESCRIPTION_EMPTY"
	CodeTicketInvalidCategory  Code = "TICKET_INVALID_CATEGORY"
	CodeTicketInvalidUrgency   Code = "TICKET_INVALID_URGENCY"
	CodeTicketNotClassifiable  Code = "TICKET_NOT_CLASSIFIABLE"
	CodeClassifierUnavailable  Code = "CLASSIFIER_UNAVAILABLE"
	CodeClassifierBadResponse  Code = "CLASSIFIER_BAD_RESPONSE"

	// Invite errors
	CodeInviteEmptyPropertyID  Code = "INVITE_EMPTY_PROPERTY_ID"
	CodeInviteEmptyTenantEmail Code = "INVITE_EMPTY_TENANT_EMAIL"
	CodeInviteInvalidEmail     Code = "INVITE_INVALID_TENANT_EMAIL"
	CodeInviteEmptyID          Code = "INVITE_EMPTY_ID"
	CodeInviteNotPending       Code = "INVITE_NOT_PENDING"
	CodeInviteIncomplete       Code = "INVITE_INCOMPLETE_REFERENCES"
	CodeInviteWrongRecipient   Code = "INVITE_WRONG_RECIPIENT"

	// Tenancy errors
	CodeTenantAlreadyLinked Code = "TENANT_ALREADY_LINKED"

	// Identity errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// Transport errors
	CodeBadRequestBody Code = "BAD_REQUEST_BODY"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeTicketDescriptionEmpty,
		CodeTicketInvalidCategory,
		CodeTicketInvalidUrgency,
		CodeInviteEmptyPropertyID,
		CodeInviteEmptyTenantEmail,
		CodeInviteInvalidEmail,
		CodeInviteEmptyID,
		CodeBadRequestBody:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInviteNotPending,
		CodeTenantAlreadyLinked,
		CodeTicketNotClassifiable,
		CodeConflict:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// PermissionDenied - caller identity does not match the target
	case CodeInviteWrongRecipient:
		return codes.PermissionDenied

	case CodeUnauthenticated:
		return codes.Unauthenticated

	case CodeClassifierUnavailable,
		CodeClassifierBadResponse,
		CodeInviteIncomplete:
		return codes.Internal

	default:
		return codes.Internal
	}
}
