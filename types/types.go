package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TokenStandard represents the token standard used for payment
type TokenStandard string

const (
	TokenStandardERC20 TokenStandard = "erc20"
)

// StoreConfig holds the fixed storefront configuration. None of it is
// editable by the buyer.
type StoreConfig struct {
	// Network the token lives on (e.g. "sepolia").
	Network Network `json:"network" mapstructure:"network" validate:"required"`

	// JSON-RPC endpoint of the network.
	RPCUrl string `json:"rpcUrl" mapstructure:"rpc_url" validate:"required,url"`

	// Chain id of the network. Zero means "ask the RPC node".
	ChainID int64 `json:"chainId,omitempty" mapstructure:"chain_id" validate:"gte=0"`

	// Address of the ERC20 stablecoin contract.
	TokenContract string `json:"tokenContract" mapstructure:"token_contract" validate:"required,eth_addr"`

	// Token symbol shown to the buyer.
	TokenSymbol string `json:"tokenSymbol" mapstructure:"token_symbol" validate:"required"`

	// Decimal precision of the token (6 for USDC).
	TokenDecimals int32 `json:"tokenDecimals" mapstructure:"token_decimals" validate:"gte=0,lte=36"`

	// Address of the store wallet receiving payments.
	Recipient string `json:"recipient" mapstructure:"recipient" validate:"required,eth_addr"`

	// Price in whole token units (e.g. "25").
	Price string `json:"price" mapstructure:"price" validate:"required,numeric"`

	// Name of the product on sale.
	ItemName string `json:"itemName" mapstructure:"item_name" validate:"required"`

	// Base URL of the block explorer, transaction hashes are appended to it.
	ExplorerURL string `json:"explorerUrl,omitempty" mapstructure:"explorer_url" validate:"omitempty,url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// EnableMetrics switches the prometheus recorder on.
	EnableMetrics bool `json:"enableMetrics,omitempty" mapstructure:"enable_metrics"`

	// ConfirmationTimeout bounds each wait for a transaction confirmation.
	// Zero waits indefinitely.
	ConfirmationTimeout time.Duration `json:"confirmationTimeout,omitempty" mapstructure:"confirmation_timeout" validate:"gte=0"`
}

// PriceDecimal returns the configured price as a decimal.
func (c *StoreConfig) PriceDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Price)
}

// PaymentRequest is the immutable description of what is being bought.
type PaymentRequest struct {
	Token     string          `json:"token"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Decimals  int32           `json:"decimals"`
	Symbol    string          `json:"symbol"`
	ItemName  string          `json:"itemName"`
}

// DisplayAmount formats the amount the way it is shown on a receipt,
// e.g. "25 USDC".
func (p PaymentRequest) DisplayAmount() string {
	return fmt.Sprintf("%s %s", p.Amount.String(), p.Symbol)
}

// Session is created on a successful connect.
type Session struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// Balance is the token balance of the connected account.
type Balance struct {
	// Amount in whole token units.
	Amount decimal.Decimal `json:"amount"`

	// Raw balance in the token's smallest unit.
	Raw *big.Int `json:"raw,omitempty"`

	Symbol    string    `json:"symbol"`
	Decimals  int32     `json:"decimals"`
	Loaded    bool      `json:"loaded"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
}

// String renders the balance as "<amount> <symbol>".
func (b Balance) String() string {
	return fmt.Sprintf("%s %s", b.Amount.String(), b.Symbol)
}

// TxStatus is the confirmation status of a submitted transaction.
type TxStatus string

const (
	TxStatusNone      TxStatus = ""
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// TxRecord tracks the two transactions of a payment.
type TxRecord struct {
	ApprovalHash   string   `json:"approvalHash,omitempty"`
	ApprovalStatus TxStatus `json:"approvalStatus,omitempty"`
	TransferHash   string   `json:"transferHash,omitempty"`
	TransferStatus TxStatus `json:"transferStatus,omitempty"`
}

// Confirmed reports whether both the approval and the transfer settled.
func (r TxRecord) Confirmed() bool {
	return r.ApprovalStatus == TxStatusConfirmed && r.TransferStatus == TxStatusConfirmed
}

// Receipt is the local summary of a completed payment. It is not a proof
// of payment.
type Receipt struct {
	ItemName        string    `json:"itemName"`
	PurchaseAmount  string    `json:"purchaseAmount"`
	TransactionHash string    `json:"transactionHash"`
	ApprovalHash    string    `json:"approvalHash,omitempty"`
	Date            string    `json:"date"`
	Timestamp       time.Time `json:"timestamp"`
	ExplorerURL     string    `json:"explorerUrl,omitempty"`
}

// ReceiptDateLayout is the human-readable layout of Receipt.Date.
const ReceiptDateLayout = "1/2/2006, 3:04:05 PM"
