package server

import "errors"

var (
	// Authorization errors
	ErrNotAuthorized      = errors.New("caller is not authorized")
	ErrAlreadyInitialized = errors.New("registry is already initialized")
	ErrNotInitialized     = errors.New("registry is not initialized")
	ErrInvalidStatus      = errors.New("registry status does not permit this operation")

	// Policy errors
	ErrDueFeeNotPaid           = errors.New("sub-account has unpaid due fee")
	ErrBalanceInsufficient     = errors.New("spendable balance is insufficient")
	ErrOwnerNotEligibleToClose = errors.New("owner ledger still has sub-accounts")

	// Fee errors
	ErrFeeCollectorInvalid      = errors.New("destination is not a registered fee collector")
	ErrMalformedFeeInstructions = errors.New("leading instructions are not compute budget directives")

	// Delegated call validation errors
	ErrUnrecognizedRoute         = errors.New("unrecognized swap route")
	ErrSourceAccountInvalid      = errors.New("source token account is not controlled by the sub-account")
	ErrDestinationAccountInvalid = errors.New("destination token account is not controlled by the sub-account")
	ErrUserAccountInvalid        = errors.New("user account does not match the sub-account")
	ErrNoEligibleAccount         = errors.New("route has no wrapped native token account")
	ErrSlippageExceeded          = errors.New("swap output is below the minimum")
	ErrAmountOverflow            = errors.New("swap amount computation overflow")
	ErrTipAccountInvalid         = errors.New("tip account is not owned by the tip program")
)
