package types

import "errors"

// ErrorCode classifies a payment flow failure.
type ErrorCode string

// Error codes
const (
	ErrProviderUnavailable  ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrUserRejected         ErrorCode = "USER_REJECTED"
	ErrInsufficientFunds    ErrorCode = "INSUFFICIENT_FUNDS"
	ErrInsufficientGasFunds ErrorCode = "INSUFFICIENT_GAS_FUNDS"
	ErrProviderError        ErrorCode = "PROVIDER_ERROR"
	ErrNotConnected         ErrorCode = "NOT_CONNECTED"
	ErrBalanceUnavailable   ErrorCode = "BALANCE_UNAVAILABLE"
	ErrBusy                 ErrorCode = "BUSY"
	ErrInvalidConfig        ErrorCode = "INVALID_CONFIG"
)

// Step names the operation a PaymentError was raised in.
type Step string

const (
	StepConnect  Step = "connect"
	StepBalance  Step = "balance"
	StepFunds    Step = "funds"
	StepApprove  Step = "approve"
	StepTransfer Step = "transfer"
	StepConfig   Step = "config"
)

// PaymentError is returned by every controller operation.
type PaymentError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Step    Step      `json:"step,omitempty"`
	Err     error     `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is matches another *PaymentError by code, so callers can write
// errors.Is(err, &types.PaymentError{Code: types.ErrUserRejected}).
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewPaymentError builds a PaymentError with the default message for code.
func NewPaymentError(code ErrorCode, step Step, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: UserMessage(code),
		Step:    step,
		Err:     err,
	}
}

// CodeOf extracts the error code from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// UserMessage returns the alert text shown to the buyer.
func UserMessage(code ErrorCode) string {
	switch code {
	case ErrProviderUnavailable:
		return "No wallet provider available. Please configure a wallet."
	case ErrUserRejected:
		return "Transaction rejected by the user. Please try again if you wish to proceed."
	case ErrInsufficientFunds:
		return "Insufficient USDC balance!"
	case ErrInsufficientGasFunds:
		return "Insufficient funds for the transaction."
	case ErrNotConnected:
		return "Please connect your wallet first."
	case ErrBalanceUnavailable:
		return "Balance not loaded yet. Please refresh your balance."
	case ErrBusy:
		return "A payment is already being processed."
	case ErrInvalidConfig:
		return "The store configuration is invalid. Please verify and try again."
	default:
		return "Payment failed. Please try again."
	}
}
