package utils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/usdcpay/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStoreConfig runs the struct-tag validation and the checks the tags
// cannot express. On success the token and recipient addresses are
// rewritten in checksummed form.
func ValidateStoreConfig(cfg *types.StoreConfig) error {
	if cfg == nil {
		return configError("store config is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		return configError(fmt.Sprintf("validation failed: %v", err))
	}

	token, err := ValidateAddress(cfg.TokenContract)
	if err != nil {
		return configError(fmt.Sprintf("invalid token contract address: %v", err))
	}

	recipient, err := ValidateAddress(cfg.Recipient)
	if err != nil {
		return configError(fmt.Sprintf("invalid recipient address: %v", err))
	}

	price, err := ValidateAmount(cfg.Price)
	if err != nil {
		return configError(fmt.Sprintf("invalid price: %v", err))
	}
	if _, err := ToSmallestUnit(*price, cfg.TokenDecimals); err != nil {
		return configError(fmt.Sprintf("invalid price: %v", err))
	}

	if !cfg.Network.IsKnown() && cfg.ChainID == 0 {
		return configError(fmt.Sprintf("unknown network %q requires an explicit chain id", cfg.Network))
	}
	if cfg.Network.IsKnown() && cfg.ChainID != 0 && cfg.ChainID != cfg.Network.ChainID() {
		return configError(fmt.Sprintf("chain id %d does not match network %s", cfg.ChainID, cfg.Network))
	}

	cfg.TokenContract = token
	cfg.Recipient = recipient
	return nil
}

// PaymentRequestFromConfig builds the immutable payment request for cfg.
// cfg must have passed ValidateStoreConfig.
func PaymentRequestFromConfig(cfg *types.StoreConfig) (types.PaymentRequest, error) {
	price, err := cfg.PriceDecimal()
	if err != nil {
		return types.PaymentRequest{}, configError(fmt.Sprintf("invalid price: %v", err))
	}

	return types.PaymentRequest{
		Token:     cfg.TokenContract,
		Recipient: cfg.Recipient,
		Amount:    price,
		Decimals:  cfg.TokenDecimals,
		Symbol:    cfg.TokenSymbol,
		ItemName:  cfg.ItemName,
	}, nil
}

func configError(msg string) *types.PaymentError {
	return &types.PaymentError{
		Code:    types.ErrInvalidConfig,
		Message: msg,
		Step:    types.StepConfig,
	}
}
