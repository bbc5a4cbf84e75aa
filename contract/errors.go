package contract

import (
	"errors"
	"fmt"

	"carbonregistry/pkg/safemath"
)

// ErrorCode is the enumerable kind of a rejected operation.
type ErrorCode string

const (
	// authorization
	CodePermissions          ErrorCode = "Permissions"
	CodeUserNotActive        ErrorCode = "UserNotActive"
	CodeUnauthorizedVerifier ErrorCode = "UnauthorizedVerifier"
	CodeUnauthorizedAdmin    ErrorCode = "UnauthorizedAdmin"
	CodeVerifierNotActive    ErrorCode = "VerifierNotActive"
	CodeSystemPaused         ErrorCode = "SystemPaused"

	// state machine
	CodeProjectNotVerified      ErrorCode = "ProjectNotVerified"
	CodeProjectAlreadyProcessed ErrorCode = "ProjectAlreadyProcessed"
	CodeAlreadyExists           ErrorCode = "AlreadyExists"
	CodeNotFound                ErrorCode = "NotFound"
	CodeListingInactive         ErrorCode = "ListingInactive"
	CodeListingExpired          ErrorCode = "ListingExpired"

	// capacity / quantity
	CodeExceedsVerifiedCapacity  ErrorCode = "ExceedsVerifiedCapacity"
	CodeExceedsAvailableQuantity ErrorCode = "ExceedsAvailableQuantity"
	CodeInsufficientCredits      ErrorCode = "InsufficientCredits"
	CodeInsufficientFunds        ErrorCode = "InsufficientFunds"
	CodeNonTransferable          ErrorCode = "NonTransferable"

	// arithmetic / input
	CodeMathOverflow                ErrorCode = "MathOverflow"
	CodeInvalidCarbonMeasurement    ErrorCode = "InvalidCarbonMeasurement"
	CodeInvalidQualityRating        ErrorCode = "InvalidQualityRating"
	CodeInvalidInput                ErrorCode = "InvalidInput"
	CodeInvalidCoordinates          ErrorCode = "InvalidCoordinates"
	CodeInvalidFee                  ErrorCode = "InvalidFee"
	CodeMissingRegistryID           ErrorCode = "MissingRegistryId"
	CodeRegistryIDMismatch          ErrorCode = "RegistryIdMismatch"
	CodeInsufficientVerificationFee ErrorCode = "InsufficientVerificationFee"
	CodeDuplicateLocation           ErrorCode = "DuplicateLocation"

	// market
	CodeSlippageExceeded ErrorCode = "SlippageExceeded"
	CodeLiquidityZero    ErrorCode = "LiquidityZero"

	// compliance
	CodeComplianceNotApproved      ErrorCode = "ComplianceNotApproved"
	CodeComplianceValidationFailed ErrorCode = "ComplianceValidationFailed"

	// governance
	CodeInvalidThreshold        ErrorCode = "InvalidThreshold"
	CodeTooManyAdmins           ErrorCode = "TooManyAdmins"
	CodeProposalAlreadyExecuted ErrorCode = "ProposalAlreadyExecuted"
	CodeProposalCancelled       ErrorCode = "ProposalCancelled"
	CodeProposalExpired         ErrorCode = "ProposalExpired"
	CodeAlreadyApproved         ErrorCode = "AlreadyApproved"
	CodeInsufficientApprovals   ErrorCode = "InsufficientApprovals"
	CodeDataTooLarge            ErrorCode = "DataTooLarge"
	CodeMultisigDisabled        ErrorCode = "MultisigDisabled"
)

// RegistryError is the structured error returned to callers.
type RegistryError struct {
	Code    ErrorCode
	Message string
}

func (e *RegistryError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any RegistryError carrying the same code.
func (e *RegistryError) Is(target error) bool {
	var re *RegistryError
	if !errors.As(target, &re) {
		return false
	}
	return re.Code == e.Code
}

func newError(code ErrorCode, format string, args ...interface{}) error {
	return &RegistryError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrPermissions                 = &RegistryError{Code: CodePermissions}
	ErrUserNotActive               = &RegistryError{Code: CodeUserNotActive}
	ErrUnauthorizedVerifier        = &RegistryError{Code: CodeUnauthorizedVerifier}
	ErrUnauthorizedAdmin           = &RegistryError{Code: CodeUnauthorizedAdmin}
	ErrVerifierNotActive           = &RegistryError{Code: CodeVerifierNotActive}
	ErrSystemPaused                = &RegistryError{Code: CodeSystemPaused}
	ErrProjectNotVerified          = &RegistryError{Code: CodeProjectNotVerified}
	ErrProjectAlreadyProcessed     = &RegistryError{Code: CodeProjectAlreadyProcessed}
	ErrAlreadyExists               = &RegistryError{Code: CodeAlreadyExists}
	ErrNotFound                    = &RegistryError{Code: CodeNotFound}
	ErrListingInactive             = &RegistryError{Code: CodeListingInactive}
	ErrListingExpired              = &RegistryError{Code: CodeListingExpired}
	ErrExceedsVerifiedCapacity     = &RegistryError{Code: CodeExceedsVerifiedCapacity}
	ErrExceedsAvailableQuantity    = &RegistryError{Code: CodeExceedsAvailableQuantity}
	ErrInsufficientCredits         = &RegistryError{Code: CodeInsufficientCredits}
	ErrInsufficientFunds           = &RegistryError{Code: CodeInsufficientFunds}
	ErrNonTransferable             = &RegistryError{Code: CodeNonTransferable}
	ErrMathOverflow                = &RegistryError{Code: CodeMathOverflow}
	ErrInvalidCarbonMeasurement    = &RegistryError{Code: CodeInvalidCarbonMeasurement}
	ErrInvalidQualityRating        = &RegistryError{Code: CodeInvalidQualityRating}
	ErrInvalidInput                = &RegistryError{Code: CodeInvalidInput}
	ErrInvalidCoordinates          = &RegistryError{Code: CodeInvalidCoordinates}
	ErrInvalidFee                  = &RegistryError{Code: CodeInvalidFee}
	ErrMissingRegistryID           = &RegistryError{Code: CodeMissingRegistryID}
	ErrRegistryIDMismatch          = &RegistryError{Code: CodeRegistryIDMismatch}
	ErrInsufficientVerificationFee = &RegistryError{Code: CodeInsufficientVerificationFee}
	ErrDuplicateLocation           = &RegistryError{Code: CodeDuplicateLocation}
	ErrSlippageExceeded            = &RegistryError{Code: CodeSlippageExceeded}
	ErrLiquidityZero               = &RegistryError{Code: CodeLiquidityZero}
	ErrComplianceNotApproved       = &RegistryError{Code: CodeComplianceNotApproved}
	ErrComplianceValidationFailed  = &RegistryError{Code: CodeComplianceValidationFailed}
	ErrInvalidThreshold            = &RegistryError{Code: CodeInvalidThreshold}
	ErrTooManyAdmins               = &RegistryError{Code: CodeTooManyAdmins}
	ErrProposalAlreadyExecuted     = &RegistryError{Code: CodeProposalAlreadyExecuted}
	ErrProposalCancelled           = &RegistryError{Code: CodeProposalCancelled}
	ErrProposalExpired             = &RegistryError{Code: CodeProposalExpired}
	ErrAlreadyApproved             = &RegistryError{Code: CodeAlreadyApproved}
	ErrInsufficientApprovals       = &RegistryError{Code: CodeInsufficientApprovals}
	ErrDataTooLarge                = &RegistryError{Code: CodeDataTooLarge}
	ErrMultisigDisabled            = &RegistryError{Code: CodeMultisigDisabled}
)

// mathError converts safemath failures into MathOverflow and passes other errors through.
func mathError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, safemath.ErrOverflow) || errors.Is(err, safemath.ErrUnderflow) || errors.Is(err, safemath.ErrDivisionByZero) {
		return newError(CodeMathOverflow, "%s: %v", what, err)
	}
	return err
}
