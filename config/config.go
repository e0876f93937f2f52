// Package config loads the storefront configuration from the environment,
// an optional .env file and an optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/vitwit/usdcpay/types"
	"github.com/vitwit/usdcpay/utils"
)

// EnvPrefix prefixes every environment variable, e.g. USDCPAY_RPC_URL.
const EnvPrefix = "USDCPAY"

// Defaults of the demo storefront.
const (
	DefaultNetwork       = types.NetworkSepolia
	DefaultRPCURL        = "https://ethereum-sepolia-rpc.publicnode.com"
	DefaultTokenContract = "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238"
	DefaultTokenSymbol   = "USDC"
	DefaultTokenDecimals = 6
	DefaultRecipient     = "0x34992c9a838d6143252efc13e8efd33ba195e44f"
	DefaultPrice         = "25"
	DefaultItemName      = "T-Shirt"
	DefaultLogLevel      = "info"
)

// Config is the loaded configuration. The wallet key is kept apart from
// StoreConfig so the store settings can be logged or printed safely.
type Config struct {
	Store     types.StoreConfig
	WalletKey string
}

// Load reads the configuration. Values come, highest precedence first, from
// USDCPAY_* environment variables (a .env file in the working directory is
// loaded into the environment first), the config file at path when path is
// not empty, and the built-in defaults. The result is validated; an invalid
// configuration returns an INVALID_CONFIG PaymentError.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &types.PaymentError{
				Code:    types.ErrInvalidConfig,
				Message: fmt.Sprintf("reading config %s", path),
				Step:    types.StepConfig,
				Err:     err,
			}
		}
	}

	var store types.StoreConfig
	if err := v.Unmarshal(&store); err != nil {
		return nil, &types.PaymentError{
			Code:    types.ErrInvalidConfig,
			Message: "decoding config",
			Step:    types.StepConfig,
			Err:     err,
		}
	}

	if store.ExplorerURL == "" {
		store.ExplorerURL = store.Network.ExplorerTxURL()
	}

	if err := utils.ValidateStoreConfig(&store); err != nil {
		return nil, err
	}

	return &Config{
		Store:     store,
		WalletKey: v.GetString("private_key"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network", string(DefaultNetwork))
	v.SetDefault("rpc_url", DefaultRPCURL)
	v.SetDefault("chain_id", 0)
	v.SetDefault("token_contract", DefaultTokenContract)
	v.SetDefault("token_symbol", DefaultTokenSymbol)
	v.SetDefault("token_decimals", DefaultTokenDecimals)
	v.SetDefault("recipient", DefaultRecipient)
	v.SetDefault("price", DefaultPrice)
	v.SetDefault("item_name", DefaultItemName)
	v.SetDefault("explorer_url", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("enable_metrics", false)
	v.SetDefault("confirmation_timeout", "0s")
	v.SetDefault("private_key", "")
}
