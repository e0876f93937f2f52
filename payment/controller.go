// Package payment implements the storefront's payment flow: connect a
// wallet, read its token balance, and pay with an approve-then-transfer
// sequence.
//
// The approval and the transfer are two independent transactions. If the
// transfer fails after the approval confirmed, the allowance stays granted
// on chain; the controller reports the failure and does not try to revoke
// or reconcile it.
package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcpay/clients"
	"github.com/vitwit/usdcpay/logger"
	"github.com/vitwit/usdcpay/metrics"
	"github.com/vitwit/usdcpay/types"
	"github.com/vitwit/usdcpay/utils"
)

// Controller owns the session, balance, transaction and receipt state of one
// buyer. All mutation goes through its operations.
type Controller struct {
	provider       clients.Provider
	request        types.PaymentRequest
	network        types.Network
	explorerURL    string
	confirmTimeout time.Duration
	now            func() time.Time

	log      logger.Logger
	metrics  metrics.Recorder
	notifier Notifier

	busy atomic.Bool

	mu      sync.RWMutex
	state   types.State
	lastErr *types.PaymentError
	session types.Session
	balance types.Balance
	txs     types.TxRecord
	receipt *types.Receipt
}

type Option func(*Controller)

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.metrics = r
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithConfirmationTimeout bounds each confirmation wait. Zero, the default,
// waits as long as the provider does.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.confirmTimeout = d
	}
}

func WithNetwork(n types.Network) Option {
	return func(c *Controller) {
		c.network = n
	}
}

// WithExplorerURL sets the block explorer prefix used for receipt links.
func WithExplorerURL(u string) Option {
	return func(c *Controller) {
		c.explorerURL = u
	}
}

// WithClock overrides time.Now for receipt timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates a controller in the Disconnected state. provider may
// be nil, in which case Connect fails with ProviderUnavailable.
func NewController(provider clients.Provider, req types.PaymentRequest, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		request:  req,
		now:      time.Now,
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		notifier: noopNotifier{},
		state:    types.StateDisconnected,
		balance: types.Balance{
			Amount:   decimal.Zero,
			Symbol:   req.Symbol,
			Decimals: req.Decimals,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.network == "" && provider != nil {
		c.network = provider.GetNetwork()
	}
	c.log = logger.With(c.log, map[string]any{"component": "payment"})
	return c
}

// Connect requests account access from the provider. On success the session
// is recorded and the balance is fetched; a failed fetch does not fail the
// connect. On failure the controller moves to Failed and the buyer may retry.
func (c *Controller) Connect(ctx context.Context) (types.Session, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return c.Session(), c.reject(types.ErrBusy, types.StepConnect)
	}
	defer c.busy.Store(false)

	if err := c.transition(types.StateConnecting); err != nil {
		return c.Session(), err
	}

	if c.provider == nil {
		return c.Session(), c.fail(types.NewPaymentError(types.ErrProviderUnavailable, types.StepConnect, clients.ErrNoProvider))
	}

	start := time.Now()
	accounts, err := c.provider.RequestAccounts(ctx)
	c.metrics.ObserveLatency("request_accounts", time.Since(start), c.labels(""))
	if err != nil {
		return c.Session(), c.fail(clients.Classify(err, types.StepConnect))
	}
	if len(accounts) == 0 || accounts[0] == "" {
		return c.Session(), c.fail(types.NewPaymentError(types.ErrProviderUnavailable, types.StepConnect,
			fmt.Errorf("provider returned no accounts")))
	}

	session := types.Session{Connected: true, Address: accounts[0]}
	c.mu.Lock()
	if !strings.EqualFold(c.session.Address, session.Address) {
		// A different account must not inherit the previous balance.
		c.balance = types.Balance{
			Amount:   decimal.Zero,
			Symbol:   c.request.Symbol,
			Decimals: c.request.Decimals,
		}
	}
	c.session = session
	c.mu.Unlock()

	if err := c.transition(types.StateConnected); err != nil {
		return session, err
	}

	c.metrics.IncCounter(metrics.EventConnect, c.labels(""))
	c.log.Info("wallet connected", map[string]any{"address": session.Address, "network": c.network.String()})

	// Errors are logged inside FetchBalance and leave the prior value.
	_, _ = c.FetchBalance(ctx, session.Address)

	return session, nil
}

// FetchBalance reads the token balance of address and converts it to whole
// units. A failure keeps the previous balance, is logged, and does not change
// the controller state.
func (c *Controller) FetchBalance(ctx context.Context, address string) (types.Balance, error) {
	if c.provider == nil {
		return c.Balance(), types.NewPaymentError(types.ErrProviderUnavailable, types.StepBalance, clients.ErrNoProvider)
	}

	start := time.Now()
	raw, err := c.provider.GetBalance(ctx, c.request.Token, address)
	c.metrics.ObserveLatency("get_balance", time.Since(start), c.labels(""))
	if err != nil {
		pe := clients.Classify(err, types.StepBalance)
		c.metrics.IncCounter(metrics.EventBalanceFailed, c.labels(pe.Code))
		c.log.Error("fetching token balance failed", map[string]any{
			"address": address,
			"token":   c.request.Token,
			"error":   err,
		})
		return c.Balance(), pe
	}

	bal := types.Balance{
		Amount:    utils.FromSmallestUnit(raw, c.request.Decimals),
		Raw:       raw,
		Symbol:    c.request.Symbol,
		Decimals:  c.request.Decimals,
		Loaded:    true,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	if c.session.Connected && strings.EqualFold(c.session.Address, address) {
		c.balance = bal
	}
	c.mu.Unlock()

	c.metrics.IncCounter(metrics.EventBalance, c.labels(""))
	c.log.Debug("token balance fetched", map[string]any{
		"address": address,
		"raw":     raw.String(),
		"balance": bal.String(),
	})
	return bal, nil
}

// Pay buys the configured item at the configured price.
func (c *Controller) Pay(ctx context.Context) (*types.Receipt, error) {
	return c.PayFor(ctx, c.request.Amount, c.request.Recipient)
}

// PayFor pays amount (whole token units) to recipient. The balance must have
// been fetched and must cover amount, otherwise nothing is submitted. The
// approval is confirmed before the transfer is submitted; any failure aborts
// the flow at that step.
func (c *Controller) PayFor(ctx context.Context, amount decimal.Decimal, recipient string) (*types.Receipt, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, c.reject(types.ErrBusy, types.StepFunds)
	}
	defer c.busy.Store(false)

	session := c.Session()
	if !session.Connected {
		return nil, c.reject(types.ErrNotConnected, types.StepFunds)
	}
	if c.provider == nil {
		return nil, c.reject(types.ErrProviderUnavailable, types.StepFunds)
	}
	balance := c.Balance()
	if !balance.Loaded {
		return nil, c.reject(types.ErrBalanceUnavailable, types.StepFunds)
	}

	recipient, err := utils.ValidateAddress(recipient)
	if err != nil {
		return nil, c.rejectInput(fmt.Errorf("invalid recipient: %w", err))
	}
	if !amount.IsPositive() {
		return nil, c.rejectInput(fmt.Errorf("amount must be positive, got %s", amount))
	}
	if _, err := utils.ToSmallestUnit(amount, c.request.Decimals); err != nil {
		return nil, c.rejectInput(err)
	}

	if err := c.transition(types.StateCheckingFunds); err != nil {
		return nil, err
	}

	c.metrics.IncCounter(metrics.EventPaymentStarted, c.labels(""))

	if balance.Amount.LessThan(amount) {
		c.log.Warn("insufficient token balance", map[string]any{
			"balance": balance.Amount.String(),
			"price":   amount.String(),
		})
		return nil, c.fail(types.NewPaymentError(types.ErrInsufficientFunds, types.StepFunds,
			fmt.Errorf("balance %s is below %s", balance.Amount, amount)))
	}

	raw, err := utils.ToSmallestUnit(amount, c.request.Decimals)
	if err != nil {
		return nil, c.fail(types.NewPaymentError(types.ErrInvalidConfig, types.StepFunds, err))
	}

	c.mu.Lock()
	c.txs = types.TxRecord{}
	c.mu.Unlock()

	// Phase 1: approve and wait.
	if err := c.transition(types.StateApproving); err != nil {
		return nil, err
	}
	approveHash, perr := c.submitAndWait(ctx, types.StepApprove, func() (string, error) {
		return c.provider.Approve(ctx, c.request.Token, recipient, raw)
	})
	if perr != nil {
		return nil, c.fail(perr)
	}

	// Phase 2: transfer and wait.
	if err := c.transition(types.StateTransferring); err != nil {
		return nil, err
	}
	transferHash, perr := c.submitAndWait(ctx, types.StepTransfer, func() (string, error) {
		return c.provider.Transfer(ctx, c.request.Token, recipient, raw)
	})
	if perr != nil {
		c.log.Warn("approval left granted without transfer", map[string]any{
			"approval_tx": approveHash,
			"spender":     recipient,
			"amount":      amount.String(),
		})
		return nil, c.fail(perr)
	}

	req := c.request
	req.Amount = amount
	req.Recipient = recipient

	receipt, err := ProjectReceipt(req, c.Transactions(), c.now(), c.explorerURL)
	if err != nil {
		return nil, c.fail(types.NewPaymentError(types.ErrProviderError, types.StepTransfer, err))
	}

	c.mu.Lock()
	c.receipt = receipt
	c.mu.Unlock()

	if err := c.transition(types.StateCompleted); err != nil {
		return nil, err
	}

	c.metrics.IncCounter(metrics.EventPaymentCompleted, c.labels(""))
	c.log.Info("payment completed", map[string]any{
		"item":        receipt.ItemName,
		"amount":      receipt.PurchaseAmount,
		"approval_tx": approveHash,
		"transfer_tx": transferHash,
	})
	c.notifier.Notify(Notice{Level: NoticeInfo, Message: successMessage})

	out := *receipt
	return &out, nil
}

// submitAndWait submits one transaction and blocks until it is confirmed,
// recording its hash and status as it goes.
func (c *Controller) submitAndWait(ctx context.Context, step types.Step, submit func() (string, error)) (string, *types.PaymentError) {
	start := time.Now()
	hash, err := submit()
	c.metrics.ObserveLatency(string(step)+"_submit", time.Since(start), c.labels(""))
	if err != nil {
		return "", clients.Classify(err, step)
	}
	if err := utils.ValidateTransactionHash(hash); err != nil {
		return "", types.NewPaymentError(types.ErrProviderError, step, fmt.Errorf("provider returned %q: %w", hash, err))
	}

	c.recordTx(step, hash, types.TxStatusSubmitted)
	c.metrics.IncCounter(metrics.EventTxSubmitted, c.labels(""))
	c.log.Info("transaction submitted", map[string]any{"step": string(step), "tx": hash})

	waitCtx := ctx
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}

	start = time.Now()
	err = c.provider.WaitForConfirmation(waitCtx, hash)
	c.metrics.ObserveLatency(string(step)+"_confirm", time.Since(start), c.labels(""))
	if err != nil {
		c.recordTx(step, hash, types.TxStatusFailed)
		return hash, clients.Classify(err, step)
	}

	c.recordTx(step, hash, types.TxStatusConfirmed)
	c.metrics.IncCounter(metrics.EventTxConfirmed, c.labels(""))
	c.log.Info("transaction confirmed", map[string]any{"step": string(step), "tx": hash})
	return hash, nil
}

func (c *Controller) recordTx(step types.Step, hash string, status types.TxStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch step {
	case types.StepApprove:
		c.txs.ApprovalHash = hash
		c.txs.ApprovalStatus = status
	case types.StepTransfer:
		c.txs.TransferHash = hash
		c.txs.TransferStatus = status
	}
}

// transition moves the state machine; it is the only writer of c.state.
func (c *Controller) transition(next types.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CanTransition(next) {
		return &types.PaymentError{
			Code:    types.ErrProviderError,
			Message: fmt.Sprintf("invalid state transition %s -> %s", c.state, next),
		}
	}

	c.log.Debug("state transition", map[string]any{"from": c.state.String(), "to": next.String()})
	c.state = next
	if next != types.StateFailed {
		c.lastErr = nil
	}
	return nil
}

// fail moves an in-flight flow to Failed and notifies the buyer.
func (c *Controller) fail(pe *types.PaymentError) *types.PaymentError {
	if err := c.transition(types.StateFailed); err != nil {
		c.log.Error("cannot enter failed state", map[string]any{"error": err})
	}

	c.mu.Lock()
	c.lastErr = pe
	c.mu.Unlock()

	event := metrics.EventPaymentFailed
	if pe.Step == types.StepConnect {
		event = metrics.EventConnectFailed
	}
	c.metrics.IncCounter(event, c.labels(pe.Code))
	c.log.Error("payment flow failed", map[string]any{
		"step":  string(pe.Step),
		"code":  string(pe.Code),
		"error": pe,
	})
	c.notifier.Notify(Notice{Level: NoticeError, Code: pe.Code, Message: pe.Message})
	return pe
}

// reject refuses an operation before it starts. The state is left as is.
func (c *Controller) reject(code types.ErrorCode, step types.Step) *types.PaymentError {
	pe := types.NewPaymentError(code, step, nil)
	c.metrics.IncCounter(metrics.EventPaymentRejected, c.labels(code))
	c.log.Warn("operation rejected", map[string]any{"step": string(step), "code": string(code)})
	c.notifier.Notify(Notice{Level: NoticeError, Code: code, Message: pe.Message})
	return pe
}

// rejectInput refuses a payment whose amount or recipient is unusable.
func (c *Controller) rejectInput(err error) *types.PaymentError {
	pe := c.reject(types.ErrInvalidConfig, types.StepFunds)
	pe.Err = err
	return pe
}

func (c *Controller) labels(code types.ErrorCode) map[string]string {
	return map[string]string{
		"network": c.network.String(),
		"code":    string(code),
	}
}

// State returns the current state.
func (c *Controller) State() types.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the error that moved the controller to Failed, if any.
func (c *Controller) LastError() *types.PaymentError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Controller) Session() types.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Controller) Balance() types.Balance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balance
}

// Transactions returns the record of the latest payment attempt.
func (c *Controller) Transactions() types.TxRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.txs
}

// Receipt returns the receipt of the latest completed payment, or nil.
func (c *Controller) Receipt() *types.Receipt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.receipt == nil {
		return nil
	}
	out := *c.receipt
	return &out
}

// Busy reports whether a connect or payment is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Request returns the fixed payment request.
func (c *Controller) Request() types.PaymentRequest {
	return c.request
}
