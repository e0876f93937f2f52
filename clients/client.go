package clients

import (
	"context"
	"math/big"

	"github.com/vitwit/usdcpay/types"
)

// Provider is the wallet capability the payment flow runs against. Each
// call may block on a user prompt or a network round trip.
type Provider interface {
	// RequestAccounts asks for account access. The first address is the
	// active account.
	RequestAccounts(ctx context.Context) ([]string, error)

	// GetBalance returns the token balance of address in the smallest unit.
	GetBalance(ctx context.Context, token, address string) (*big.Int, error)

	// Approve submits an ERC20 approve(spender, amount) and returns the
	// transaction hash without waiting for it.
	Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error)

	// Transfer submits an ERC20 transfer(recipient, amount) and returns the
	// transaction hash without waiting for it.
	Transfer(ctx context.Context, token, recipient string, amount *big.Int) (string, error)

	// WaitForConfirmation blocks until txHash is mined successfully.
	WaitForConfirmation(ctx context.Context, txHash string) error

	GetNetwork() types.Network
	Close()
}

// SigningKind is the kind of prompt shown to the wallet holder.
type SigningKind string

const (
	SigningRequestAccounts SigningKind = "request_accounts"
	SigningApprove         SigningKind = "approve"
	SigningTransfer        SigningKind = "transfer"
)

// SigningRequest describes what the wallet holder is asked to authorize.
type SigningRequest struct {
	Kind         SigningKind
	Network      types.Network
	Account      string
	Token        string
	Counterparty string
	Amount       *big.Int
}

// Approver stands in for the wallet's confirmation prompt. Returning
// ErrUserRejected means the holder declined.
type Approver interface {
	Confirm(ctx context.Context, req SigningRequest) error
}
