package errors

import stderrors "errors"

// Bridge failures. Every failure aborts the whole operation; callers match on
// these with errors.Is after the engine wraps them with call-specific detail.
var (
	ErrInvalidInput         = stderrors.New("bridge: invalid input")
	ErrNonceMismatch        = stderrors.New("bridge: nonce mismatch")
	ErrAlreadyLinked        = stderrors.New("bridge: gateway already linked")
	ErrAlreadyDeclared      = stderrors.New("bridge: message already declared")
	ErrAlreadyTerminal      = stderrors.New("bridge: message already terminal")
	ErrInvalidStatus        = stderrors.New("bridge: message status does not allow transition")
	ErrInvalidSignature     = stderrors.New("bridge: invalid signature")
	ErrInvalidUnlockSecret  = stderrors.New("bridge: invalid unlock secret")
	ErrProofInvalid         = stderrors.New("bridge: merkle proof invalid")
	ErrPathMismatch         = stderrors.New("bridge: merkle proof path mismatch")
	ErrStorageRootMissing   = stderrors.New("bridge: storage root not proven for height")
	ErrStorageRootMismatch  = stderrors.New("bridge: storage root conflicts with proven root")
	ErrStateRootUnavailable = stderrors.New("bridge: state root not available for height")
	ErrTransferFailed       = stderrors.New("bridge: transfer failed")
	ErrProcessInFlight      = stderrors.New("bridge: previous process not completed")
	ErrIntentMismatch       = stderrors.New("bridge: intent hash mismatch")
	ErrGatewayInactive      = stderrors.New("bridge: gateway not active")
	ErrMessageNotFound      = stderrors.New("bridge: message not found")
)
