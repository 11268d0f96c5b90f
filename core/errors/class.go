package errors

import stderrors "errors"

// Class groups bridge failures by how a caller should react to them.
type Class string

const (
	ClassNone          Class = ""
	ClassInvalid       Class = "invalid"
	ClassNotFound      Class = "not_found"
	ClassConflict      Class = "conflict"
	ClassUnprocessable Class = "unprocessable"
	ClassInternal      Class = "internal"
)

var classes = []struct {
	err   error
	class Class
}{
	{ErrInvalidInput, ClassInvalid},
	{ErrInvalidSignature, ClassInvalid},
	{ErrInvalidUnlockSecret, ClassInvalid},
	{ErrIntentMismatch, ClassInvalid},
	{ErrMessageNotFound, ClassNotFound},
	{ErrNonceMismatch, ClassConflict},
	{ErrAlreadyLinked, ClassConflict},
	{ErrAlreadyDeclared, ClassConflict},
	{ErrAlreadyTerminal, ClassConflict},
	{ErrInvalidStatus, ClassConflict},
	{ErrProcessInFlight, ClassConflict},
	{ErrGatewayInactive, ClassConflict},
	{ErrStorageRootMismatch, ClassConflict},
	{ErrProofInvalid, ClassUnprocessable},
	{ErrPathMismatch, ClassUnprocessable},
	{ErrStorageRootMissing, ClassUnprocessable},
	{ErrStateRootUnavailable, ClassUnprocessable},
	{ErrTransferFailed, ClassUnprocessable},
}

// Classify returns the class of err. Errors outside the bridge taxonomy are
// internal; a nil error has no class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	for _, c := range classes {
		if stderrors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassInternal
}
