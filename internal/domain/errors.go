package domain

import "errors"

// ErrorClass groups domain errors by how callers should react to them.
type ErrorClass string

const (
	ClassAuthorization ErrorClass = "authorization"
	ClassState         ErrorClass = "state"
	ClassValidation    ErrorClass = "validation"
	ClassResource      ErrorClass = "resource"
	ClassAssetSafety   ErrorClass = "asset_safety"
	ClassNotFound      ErrorClass = "not_found"
	ClassConflict      ErrorClass = "conflict"
	ClassExternal      ErrorClass = "external"
)

// Error is a classified, comparable domain failure. Sentinels are compared with errors.Is.
type Error struct {
	Code    string
	Class   ErrorClass
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError declares a sentinel error.
func NewError(code string, class ErrorClass, message string) *Error {
	return &Error{Code: code, Class: class, Message: message}
}

var (
	ErrUnauthorized = NewError("Unauthorized", ClassAuthorization, "unauthorized access")

	ErrProgramPaused     = NewError("ProgramPaused", ClassState, "program is paused")
	ErrLoanAlreadyRepaid = NewError("LoanAlreadyRepaid", ClassState, "loan has already been repaid")
	ErrLoanExpired       = NewError("LoanExpired", ClassState, "loan has expired")
	ErrLoanNotExpired    = NewError("LoanNotExpired", ClassState, "loan has not expired yet")
	ErrLoanNotSettled    = NewError("LoanNotSettled", ClassState, "loan is still open")

	ErrInvalidDuration       = NewError("InvalidDuration", ClassValidation, "invalid loan duration")
	ErrInvalidInitSolAmount  = NewError("InvalidInitSolAmount", ClassValidation, "invalid initial reserve amount")
	ErrInvalidWrappedSolMint = NewError("InvalidWrappedSolMint", ClassValidation, "invalid wrapped reserve asset")
	ErrInvalidMintAccount    = NewError("InvalidMintAccount", ClassValidation, "invalid mint account")
	ErrInvalidFee            = NewError("InvalidFee", ClassValidation, "invalid fee")
	ErrInvalidTreasury       = NewError("InvalidTreasury", ClassValidation, "invalid treasury account")
	ErrInvalidAmount         = NewError("InvalidAmount", ClassValidation, "amount must be greater than zero")
	ErrAccountNotFound       = NewError("AccountNotFound", ClassValidation, "token account not found")
	ErrArithmeticOverflow    = NewError("ArithmeticOverflow", ClassValidation, "amount overflows balance")

	ErrInsufficientBalance      = NewError("InsufficientBalance", ClassResource, "insufficient treasury balance")
	ErrInsufficientTokenBalance = NewError("InsufficientTokenBalance", ClassResource, "insufficient token balance")

	ErrMintAuthorityNotRevoked   = NewError("MintAuthorityNotRevoked", ClassAssetSafety, "mint authority has not been revoked")
	ErrFreezeAuthorityNotRevoked = NewError("FreezeAuthorityNotRevoked", ClassAssetSafety, "freeze authority has not been revoked")

	ErrLoanNotFound = NewError("LoanNotFound", ClassNotFound, "loan not found")

	ErrLoanExists       = NewError("LoanExists", ClassConflict, "a loan already exists for this pool")
	ErrConcurrentUpdate = NewError("ConcurrentUpdate", ClassConflict, "record is locked by a concurrent operation, retry")
	ErrAssetExists      = NewError("AssetExists", ClassConflict, "asset already registered")
)

// AsError extracts the classified domain error from err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
