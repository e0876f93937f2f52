package clients

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/usdcpay/types"
)

var (
	// ErrUserRejected is returned when the wallet holder declines a prompt.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrNoProvider is returned when no wallet is configured.
	ErrNoProvider = errors.New("no wallet provider available")
)

// EIP-1193 code a wallet returns when the user rejects a request.
const rpcUserRejectedCode = 4001

// Classify maps a provider error onto the payment error taxonomy. Errors
// that already are *types.PaymentError are returned unchanged.
func Classify(err error, step types.Step) *types.PaymentError {
	if err == nil {
		return nil
	}

	var pe *types.PaymentError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case IsUserRejected(err):
		return types.NewPaymentError(types.ErrUserRejected, step, err)
	case errors.Is(err, ErrNoProvider):
		return types.NewPaymentError(types.ErrProviderUnavailable, step, err)
	case IsInsufficientGasFunds(err):
		return types.NewPaymentError(types.ErrInsufficientGasFunds, step, err)
	default:
		return types.NewPaymentError(types.ErrProviderError, step, err)
	}
}

// IsUserRejected reports whether err is a declined prompt, either local or
// a JSON-RPC error with code 4001.
func IsUserRejected(err error) bool {
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == rpcUserRejectedCode
	}
	return false
}

// IsInsufficientGasFunds reports whether the node refused the transaction
// because the account cannot pay for gas.
func IsInsufficientGasFunds(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
