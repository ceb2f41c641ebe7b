package submission

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes subsystem failures.
type ErrorCode string

const (
	// ErrCodeDocumentNotApproved indicates a planned document is not in
	// approved status.
	ErrCodeDocumentNotApproved ErrorCode = "DOCUMENT_NOT_APPROVED"

	// ErrCodeQCFailure indicates a document failed quality control
	// (format, searchability, size).
	ErrCodeQCFailure ErrorCode = "QC_FAILURE"

	// ErrCodeDuplicateLeafPath indicates two plan items resolve to the
	// same destination path within one sequence.
	ErrCodeDuplicateLeafPath ErrorCode = "DUPLICATE_LEAF_PATH"

	// ErrCodeManifestIO indicates manifest or archive generation failed on
	// filesystem I/O.
	ErrCodeManifestIO ErrorCode = "MANIFEST_IO_FAILURE"

	// ErrCodeSchemaValidation indicates the backbone or a region annex
	// failed the structural check.
	ErrCodeSchemaValidation ErrorCode = "SCHEMA_VALIDATION_FAILURE"

	// ErrCodeExternalValidator indicates the external validator reported
	// blocking findings.
	ErrCodeExternalValidator ErrorCode = "EXTERNAL_VALIDATOR_FAILURE"

	// ErrCodeExternalValidatorUnreachable indicates the external validator
	// process itself could not be reached. Distinct from
	// ErrCodeExternalValidator: unreachability is never interpreted as a
	// pass.
	ErrCodeExternalValidatorUnreachable ErrorCode = "EXTERNAL_VALIDATOR_UNREACHABLE"

	// ErrCodeTransportAuth indicates gateway authentication failed.
	ErrCodeTransportAuth ErrorCode = "TRANSPORT_AUTH_FAILURE"

	// ErrCodeTransportNetwork indicates a network or remote I/O failure
	// during transport.
	ErrCodeTransportNetwork ErrorCode = "TRANSPORT_NETWORK_FAILURE"

	// ErrCodeAckParse indicates an acknowledgment artifact could not be
	// parsed.
	ErrCodeAckParse ErrorCode = "ACK_PARSE_FAILURE"

	// ErrCodeOutOfOrderAck flags an acknowledgment stage arriving before
	// its predecessor. An anomaly, not a fatal error.
	ErrCodeOutOfOrderAck ErrorCode = "OUT_OF_ORDER_ACK"
)

// Error is the structured error type for the submission subsystem.
//
// Error carries enough context (sequence id, stage, document ids) to attach
// the failure to the audit trail and replay it later.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SequenceID identifies the affected sequence, when one applies.
	SequenceID int64

	// DocumentIDs lists offending documents (plan rejection lists every
	// offender, never just the first).
	DocumentIDs []int64

	// Stage identifies the acknowledgment stage for ack-related errors.
	Stage AckStage

	// Details contains additional context.
	Details map[string]string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.SequenceID != 0 {
		fmt.Fprintf(&b, " (sequence %d)", e.SequenceID)
	}
	if len(e.DocumentIDs) > 0 {
		fmt.Fprintf(&b, " documents=%v", e.DocumentIDs)
	}
	return b.String()
}

// Is supports errors.Is comparison against another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError constructs an Error with the given code and formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns "" when err carries no submission error code.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
