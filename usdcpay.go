// Package usdcpay is a single-product storefront paid with an ERC-20
// stablecoin. A Storefront connects a wallet, shows its token balance and
// buys the configured item with an approve-then-transfer payment.
package usdcpay

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitwit/usdcpay/clients"
	"github.com/vitwit/usdcpay/logger"
	"github.com/vitwit/usdcpay/metrics"
	"github.com/vitwit/usdcpay/payment"
	"github.com/vitwit/usdcpay/types"
	"github.com/vitwit/usdcpay/utils"
)

// Storefront is the main entry point of the library.
type Storefront struct {
	config     types.StoreConfig
	request    types.PaymentRequest
	provider   clients.Provider
	controller *payment.Controller

	logger     logger.Logger
	metrics    metrics.Recorder
	notifier   payment.Notifier
	registerer prometheus.Registerer
	now        func() time.Time
}

// Product is what the storefront sells.
type Product struct {
	Name  string
	Price string
}

// New creates a Storefront for cfg. The configuration is validated first;
// an invalid one returns an INVALID_CONFIG PaymentError. provider may be
// nil, in which case Connect reports that no wallet is available.
func New(cfg *types.StoreConfig, provider clients.Provider, opts ...Option) (*Storefront, error) {
	s, err := newStorefront(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s.attach(provider)
	return s, nil
}

// NewEVMStorefront creates a Storefront backed by a local-key EVM wallet.
// An empty walletKey, or a wallet that cannot be opened, leaves the store
// without a provider; Connect then fails with PROVIDER_UNAVAILABLE.
func NewEVMStorefront(ctx context.Context, cfg *types.StoreConfig, walletKey string, approver clients.Approver, opts ...Option) (*Storefront, error) {
	s, err := newStorefront(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if walletKey == "" {
		s.logger.Warn("no wallet key configured", map[string]any{"network": s.config.Network.String()})
		s.attach(nil)
		return s, nil
	}

	p, err := clients.NewEVMProvider(ctx, s.config.Network, s.config.RPCUrl, walletKey,
		clients.WithApprover(approver),
		clients.WithChainID(s.config.ChainID),
		clients.WithProviderLogger(s.logger),
	)
	switch {
	case errors.Is(err, clients.ErrNoProvider):
		s.logger.Warn("wallet unavailable", map[string]any{"error": err})
		s.attach(nil)
		return s, nil
	case err != nil:
		return nil, err
	}

	s.attach(p)
	return s, nil
}

func newStorefront(cfg *types.StoreConfig, opts ...Option) (*Storefront, error) {
	if cfg == nil {
		return nil, &types.PaymentError{
			Code:    types.ErrInvalidConfig,
			Message: "store config is nil",
			Step:    types.StepConfig,
		}
	}

	config := *cfg
	if err := utils.ValidateStoreConfig(&config); err != nil {
		return nil, err
	}
	if config.ExplorerURL == "" {
		config.ExplorerURL = config.Network.ExplorerTxURL()
	}

	req, err := utils.PaymentRequestFromConfig(&config)
	if err != nil {
		return nil, err
	}

	s := &Storefront{
		config:  config,
		request: req,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.NewZapLogger(config.LogLevel)
	}
	if s.metrics == nil {
		if config.EnableMetrics {
			s.metrics = metrics.NewPrometheusRecorder(s.registerer)
		} else {
			s.metrics = metrics.NoopRecorder{}
		}
	}

	return s, nil
}

func (s *Storefront) attach(provider clients.Provider) {
	s.provider = provider

	opts := []payment.Option{
		payment.WithLogger(s.logger),
		payment.WithMetrics(s.metrics),
		payment.WithNotifier(s.notifier),
		payment.WithNetwork(s.config.Network),
		payment.WithExplorerURL(s.config.ExplorerURL),
		payment.WithConfirmationTimeout(s.config.ConfirmationTimeout),
		payment.WithClock(s.now),
	}
	s.controller = payment.NewController(provider, s.request, opts...)
}

// Connect connects the wallet and loads its balance.
func (s *Storefront) Connect(ctx context.Context) (types.Session, error) {
	return s.controller.Connect(ctx)
}

// RefreshBalance re-reads the balance of the connected account.
func (s *Storefront) RefreshBalance(ctx context.Context) (types.Balance, error) {
	session := s.controller.Session()
	if !session.Connected {
		return s.controller.Balance(), types.NewPaymentError(types.ErrNotConnected, types.StepBalance, nil)
	}
	return s.controller.FetchBalance(ctx, session.Address)
}

// Buy pays for the product.
func (s *Storefront) Buy(ctx context.Context) (*types.Receipt, error) {
	return s.controller.Pay(ctx)
}

func (s *Storefront) Product() Product {
	return Product{
		Name:  s.request.ItemName,
		Price: s.request.DisplayAmount(),
	}
}

func (s *Storefront) Receipt() *types.Receipt        { return s.controller.Receipt() }
func (s *Storefront) Session() types.Session         { return s.controller.Session() }
func (s *Storefront) Balance() types.Balance         { return s.controller.Balance() }
func (s *Storefront) State() types.State             { return s.controller.State() }
func (s *Storefront) Transactions() types.TxRecord   { return s.controller.Transactions() }
func (s *Storefront) LastError() *types.PaymentError { return s.controller.LastError() }

// Busy reports whether a payment is being processed.
func (s *Storefront) Busy() bool { return s.controller.Busy() }

// Config returns the validated configuration.
func (s *Storefront) Config() types.StoreConfig { return s.config }

// Close releases the wallet provider and flushes the logger. Closing while a
// payment is in flight abandons its confirmation wait.
func (s *Storefront) Close() {
	if state := s.controller.State(); state.InFlight() {
		s.logger.Warn("closing storefront with a payment in flight", map[string]any{
			"state":        state.String(),
			"transactions": s.controller.Transactions(),
		})
	}
	if s.provider != nil {
		s.provider.Close()
	}
	if z, ok := s.logger.(*logger.ZapLogger); ok {
		_ = z.Sync()
	}
}

// Version information
const (
	Version = "1.0.0"
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	known := types.KnownNetworks()
	networks := make([]string, len(known))
	for i, n := range known {
		networks[i] = n.String()
	}

	return map[string]interface{}{
		"library_version": Version,
		"supported_networks": networks,
		"supported_standards": []string{
			string(types.TokenStandardERC20),
		},
	}
}
