package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/usdcpay/clients"
	"github.com/vitwit/usdcpay/types"
)

const (
	buyer     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	store     = "0x34992c9a838d6143252efc13e8efd33ba195e44f"
	usdcToken = "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238"
)

type fakeProvider struct {
	mu          sync.Mutex
	accounts    []string
	accountsErr error
	balance     *big.Int
	balanceErr  error
	approveErr  error
	transferErr error
	waitErr     map[string]error
	waitGate    chan struct{}
	events      []string
	txCount     int
}

func newFakeProvider(balance int64) *fakeProvider {
	return &fakeProvider{
		accounts: []string{buyer},
		balance:  big.NewInt(balance),
		waitErr:  map[string]error{},
	}
}

func (f *fakeProvider) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeProvider) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeProvider) submissions() int {
	n := 0
	for _, e := range f.Events() {
		if e == "approve" || e == "transfer" {
			n++
		}
	}
	return n
}

func (f *fakeProvider) RequestAccounts(context.Context) ([]string, error) {
	f.record("request_accounts")
	return f.accounts, f.accountsErr
}

func (f *fakeProvider) GetBalance(_ context.Context, token, address string) (*big.Int, error) {
	f.record("balance")
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeProvider) Approve(_ context.Context, token, spender string, amount *big.Int) (string, error) {
	f.record("approve")
	if f.approveErr != nil {
		return "", f.approveErr
	}
	return f.nextHash(), nil
}

func (f *fakeProvider) Transfer(_ context.Context, token, recipient string, amount *big.Int) (string, error) {
	f.record("transfer")
	if f.transferErr != nil {
		return "", f.transferErr
	}
	return f.nextHash(), nil
}

func (f *fakeProvider) WaitForConfirmation(ctx context.Context, txHash string) error {
	if f.waitGate != nil {
		select {
		case <-f.waitGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.record("confirmed:" + txHash)
	return f.waitErr[txHash]
}

func (f *fakeProvider) GetNetwork() types.Network { return types.NetworkSepolia }
func (f *fakeProvider) Close()                    {}

func (f *fakeProvider) nextHash() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCount++
	return fmt.Sprintf("0x%064x", f.txCount)
}

func testRequest() types.PaymentRequest {
	return types.PaymentRequest{
		Token:     usdcToken,
		Recipient: store,
		Amount:    decimal.NewFromInt(25),
		Decimals:  6,
		Symbol:    "USDC",
		ItemName:  "T-Shirt",
	}
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeLog) last() Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return Notice{}
	}
	return n.notices[len(n.notices)-1]
}

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestController(p clients.Provider, notices *noticeLog) *Controller {
	opts := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithExplorerURL("https://sepolia.etherscan.io/tx/"),
	}
	if notices != nil {
		opts = append(opts, WithNotifier(notices))
	}
	return NewController(p, testRequest(), opts...)
}

func connected(t *testing.T, p *fakeProvider, notices *noticeLog) *Controller {
	t.Helper()
	c := newTestController(p, notices)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	return c
}

func TestConnect_Success(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := newTestController(p, nil)

	session, err := c.Connect(context.Background())
	require.NoError(t, err)

	assert.True(t, session.Connected)
	assert.Equal(t, buyer, session.Address)
	assert.Equal(t, types.StateConnected, c.State())

	bal := c.Balance()
	assert.True(t, bal.Loaded)
	assert.Equal(t, "100", bal.Amount.String())
	assert.Equal(t, "100 USDC", bal.String())
	assert.Equal(t, []string{"request_accounts", "balance"}, p.Events())
}

func TestConnect_ProviderAbsent(t *testing.T) {
	notices := &noticeLog{}
	c := newTestController(nil, notices)

	session, err := c.Connect(context.Background())
	require.Error(t, err)

	assert.Equal(t, types.ErrProviderUnavailable, types.CodeOf(err))
	assert.False(t, session.Connected)
	assert.False(t, c.Session().Connected)
	assert.Equal(t, types.StateFailed, c.State())
	assert.Equal(t, types.ErrProviderUnavailable, c.LastError().Code)
	assert.Equal(t, NoticeError, notices.last().Level)
	assert.Equal(t, types.UserMessage(types.ErrProviderUnavailable), notices.last().Message)
}

func TestConnect_UserRejectedThenRetry(t *testing.T) {
	p := newFakeProvider(100_000_000)
	p.accountsErr = clients.ErrUserRejected
	c := newTestController(p, nil)

	_, err := c.Connect(context.Background())
	assert.Equal(t, types.ErrUserRejected, types.CodeOf(err))
	assert.Equal(t, types.StateFailed, c.State())
	assert.False(t, c.Session().Connected)

	p.accountsErr = nil
	session, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, session.Connected)
	assert.Equal(t, types.StateConnected, c.State())
	assert.Nil(t, c.LastError())
}

func TestConnect_NoAccounts(t *testing.T) {
	p := newFakeProvider(0)
	p.accounts = nil
	c := newTestController(p, nil)

	_, err := c.Connect(context.Background())
	assert.Equal(t, types.ErrProviderUnavailable, types.CodeOf(err))
}

func TestConnect_BalanceFailureDoesNotFailConnect(t *testing.T) {
	p := newFakeProvider(0)
	p.balanceErr = errors.New("rpc timeout")
	c := newTestController(p, nil)

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StateConnected, c.State())
	assert.False(t, c.Balance().Loaded)
}

func TestFetchBalance_FailureKeepsPriorValue(t *testing.T) {
	p := newFakeProvider(42_500_000)
	c := connected(t, p, nil)
	require.Equal(t, "42.5", c.Balance().Amount.String())

	p.balanceErr = errors.New("connection reset")
	_, err := c.FetchBalance(context.Background(), buyer)
	require.Error(t, err)
	assert.Equal(t, types.ErrProviderError, types.CodeOf(err))

	assert.Equal(t, "42.5", c.Balance().Amount.String())
	assert.Equal(t, types.StateConnected, c.State())
}

func TestFetchBalance_Idempotent(t *testing.T) {
	p := newFakeProvider(123_456_789)
	c := connected(t, p, nil)

	first, err := c.FetchBalance(context.Background(), buyer)
	require.NoError(t, err)
	second, err := c.FetchBalance(context.Background(), buyer)
	require.NoError(t, err)

	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, "123.456789", second.Amount.String())
}

func TestPay_Success(t *testing.T) {
	p := newFakeProvider(100_000_000)
	notices := &noticeLog{}
	c := connected(t, p, notices)

	receipt, err := c.Pay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "T-Shirt", receipt.ItemName)
	assert.Equal(t, "25 USDC", receipt.PurchaseAmount)
	assert.Equal(t, fmt.Sprintf("0x%064x", 2), receipt.TransactionHash)
	assert.Equal(t, fmt.Sprintf("0x%064x", 1), receipt.ApprovalHash)
	assert.Equal(t, "3/14/2025, 3:09:26 PM", receipt.Date)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+receipt.TransactionHash, receipt.ExplorerURL)

	assert.Equal(t, types.StateCompleted, c.State())
	assert.True(t, c.Transactions().Confirmed())
	assert.Equal(t, receipt, c.Receipt())
	assert.Equal(t, Notice{Level: NoticeInfo, Message: "Payment successful!"}, notices.last())
	assert.False(t, c.Busy())
}

func TestPay_ApprovalConfirmedBeforeTransfer(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := connected(t, p, nil)

	_, err := c.Pay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"request_accounts",
		"balance",
		"approve",
		"confirmed:" + fmt.Sprintf("0x%064x", 1),
		"transfer",
		"confirmed:" + fmt.Sprintf("0x%064x", 2),
	}, p.Events())
}

func TestPay_InsufficientFundsSubmitsNothing(t *testing.T) {
	for _, raw := range []int64{0, 1, 10_000_000, 24_999_999} {
		t.Run(fmt.Sprint(raw), func(t *testing.T) {
			p := newFakeProvider(raw)
			notices := &noticeLog{}
			c := connected(t, p, notices)

			receipt, err := c.Pay(context.Background())
			require.Error(t, err)
			assert.Nil(t, receipt)
			assert.Equal(t, types.ErrInsufficientFunds, types.CodeOf(err))
			assert.Equal(t, 0, p.submissions())
			assert.Equal(t, types.TxRecord{}, c.Transactions())
			assert.Equal(t, types.StateFailed, c.State())
			assert.Equal(t, "Insufficient USDC balance!", notices.last().Message)
		})
	}
}

func TestPay_ExactBalanceIsEnough(t *testing.T) {
	p := newFakeProvider(25_000_000)
	c := connected(t, p, nil)

	_, err := c.Pay(context.Background())
	require.NoError(t, err)
}

func TestPay_UserRejectsApproval(t *testing.T) {
	p := newFakeProvider(100_000_000)
	p.approveErr = clients.ErrUserRejected
	notices := &noticeLog{}
	c := connected(t, p, notices)

	receipt, err := c.Pay(context.Background())
	require.Error(t, err)
	assert.Nil(t, receipt)
	assert.Equal(t, types.ErrUserRejected, types.CodeOf(err))
	assert.NotContains(t, p.Events(), "transfer")
	assert.Nil(t, c.Receipt())
	assert.Equal(t, types.StateFailed, c.State())
	assert.Equal(t, types.StepApprove, c.LastError().Step)
	assert.Equal(t, types.UserMessage(types.ErrUserRejected), notices.last().Message)
}

func TestPay_ApprovalNotConfirmed(t *testing.T) {
	p := newFakeProvider(100_000_000)
	p.waitErr[fmt.Sprintf("0x%064x", 1)] = errors.New("transaction reverted")
	c := connected(t, p, nil)

	_, err := c.Pay(context.Background())
	assert.Equal(t, types.ErrProviderError, types.CodeOf(err))
	assert.NotContains(t, p.Events(), "transfer")

	txs := c.Transactions()
	assert.Equal(t, types.TxStatusFailed, txs.ApprovalStatus)
	assert.Empty(t, txs.TransferHash)
}

func TestPay_TransferOutOfGasLeavesApproval(t *testing.T) {
	p := newFakeProvider(100_000_000)
	p.transferErr = errors.New("insufficient funds for gas * price + value")
	c := connected(t, p, nil)

	_, err := c.Pay(context.Background())
	assert.Equal(t, types.ErrInsufficientGasFunds, types.CodeOf(err))
	assert.Equal(t, types.StepTransfer, c.LastError().Step)

	txs := c.Transactions()
	assert.Equal(t, types.TxStatusConfirmed, txs.ApprovalStatus)
	assert.Equal(t, types.TxStatusNone, txs.TransferStatus)
	assert.Nil(t, c.Receipt())
}

func TestPay_RequiresConnection(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := newTestController(p, nil)

	_, err := c.Pay(context.Background())
	assert.Equal(t, types.ErrNotConnected, types.CodeOf(err))
	assert.Equal(t, types.StateDisconnected, c.State())
	assert.Equal(t, 0, p.submissions())
}

func TestPay_RequiresLoadedBalance(t *testing.T) {
	p := newFakeProvider(100_000_000)
	p.balanceErr = errors.New("unavailable")
	c := connected(t, p, nil)

	_, err := c.Pay(context.Background())
	assert.Equal(t, types.ErrBalanceUnavailable, types.CodeOf(err))
	assert.Equal(t, types.StateConnected, c.State())
	assert.Equal(t, 0, p.submissions())
}

func TestPay_BusyRejectsConcurrentAttempt(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := connected(t, p, nil)
	p.waitGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Pay(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return c.State() == types.StateApproving && c.Busy()
	}, time.Second, 5*time.Millisecond)

	_, err := c.Pay(context.Background())
	assert.Equal(t, types.ErrBusy, types.CodeOf(err))
	_, err = c.Connect(context.Background())
	assert.Equal(t, types.ErrBusy, types.CodeOf(err))

	close(p.waitGate)
	require.NoError(t, <-done)
	assert.Equal(t, 2, p.submissions())
	assert.False(t, c.Busy())
}

func TestPay_ConfirmationTimeout(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := NewController(p, testRequest(), WithConfirmationTimeout(20*time.Millisecond))
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	p.waitGate = make(chan struct{})

	_, err = c.Pay(context.Background())
	assert.Equal(t, types.ErrProviderError, types.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, p.Events(), "transfer")
}

func TestPay_ReceiptOverwrittenAndRetryAfterFailure(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := connected(t, p, nil)

	first, err := c.Pay(context.Background())
	require.NoError(t, err)

	p.approveErr = clients.ErrUserRejected
	_, err = c.Pay(context.Background())
	require.Error(t, err)
	assert.Equal(t, first, c.Receipt(), "failed attempt keeps the previous receipt")

	p.approveErr = nil
	second, err := c.Pay(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.TransactionHash, second.TransactionHash)
	assert.Equal(t, second, c.Receipt())
}

func TestPayFor_CustomAmount(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := connected(t, p, nil)

	receipt, err := c.PayFor(context.Background(), decimal.RequireFromString("1.5"), store)
	require.NoError(t, err)
	assert.Equal(t, "1.5 USDC", receipt.PurchaseAmount)

	_, err = c.PayFor(context.Background(), decimal.RequireFromString("0.0000001"), store)
	assert.Equal(t, types.ErrInvalidConfig, types.CodeOf(err))
	assert.Equal(t, 2, p.submissions())
}

func TestConnect_DifferentAccountDropsPreviousBalance(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := connected(t, p, nil)
	require.True(t, c.Balance().Loaded)

	const other = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	p.accounts = []string{other}
	p.balance = big.NewInt(0)
	p.balanceErr = errors.New("rpc unavailable")

	session, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, other, session.Address)

	bal := c.Balance()
	assert.False(t, bal.Loaded)
	assert.True(t, bal.Amount.IsZero())

	_, err = c.Pay(context.Background())
	assert.Equal(t, types.ErrBalanceUnavailable, types.CodeOf(err))
	assert.Equal(t, 0, p.submissions())

	p.balanceErr = nil
	_, err = c.FetchBalance(context.Background(), other)
	require.NoError(t, err)

	_, err = c.Pay(context.Background())
	assert.Equal(t, types.ErrInsufficientFunds, types.CodeOf(err))
	assert.Equal(t, 0, p.submissions())
}

func TestConnect_SameAccountKeepsBalanceOnFailedRefresh(t *testing.T) {
	p := newFakeProvider(100_000_000)
	c := connected(t, p, nil)

	p.balanceErr = errors.New("rpc unavailable")
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, c.Balance().Loaded)
	assert.Equal(t, "100", c.Balance().Amount.String())
}

func TestPayFor_RejectsBadInput(t *testing.T) {
	tests := map[string]struct {
		amount    decimal.Decimal
		recipient string
	}{
		"zero amount":       {decimal.Zero, store},
		"negative amount":   {decimal.NewFromInt(-5), store},
		"too precise":       {decimal.RequireFromString("0.0000001"), store},
		"garbage recipient": {decimal.NewFromInt(1), "not-an-address"},
		"short recipient":   {decimal.NewFromInt(1), "0x1234"},
		"bad checksum":      {decimal.NewFromInt(1), "0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p := newFakeProvider(100_000_000)
			c := connected(t, p, nil)

			receipt, err := c.PayFor(context.Background(), tt.amount, tt.recipient)
			assert.Nil(t, receipt)
			assert.Equal(t, types.ErrInvalidConfig, types.CodeOf(err))
			assert.Equal(t, 0, p.submissions())
			assert.Equal(t, types.StateConnected, c.State())
			assert.Nil(t, c.Receipt())
		})
	}
}

type badHashProvider struct {
	*fakeProvider
}

func (b badHashProvider) Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error) {
	b.record("approve")
	return "pending", nil
}

func TestPay_MalformedHashFromProvider(t *testing.T) {
	inner := newFakeProvider(100_000_000)
	c := newTestController(badHashProvider{inner}, nil)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	_, err = c.Pay(context.Background())
	assert.Equal(t, types.ErrProviderError, types.CodeOf(err))
	assert.Equal(t, types.StepApprove, c.LastError().Step)
	assert.NotContains(t, inner.Events(), "transfer")
	assert.Empty(t, c.Transactions().ApprovalHash)
}
