package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/usdcpay/logger"
	"github.com/vitwit/usdcpay/types"
	"github.com/vitwit/usdcpay/utils"
)

var _ Provider = (*EVMProvider)(nil)

const (
	defaultPollInterval = 2 * time.Second
	connectChallenge    = "usdcpay: request account access"
)

// EVMProvider is a local-key wallet talking to an EVM node over JSON-RPC.
type EVMProvider struct {
	network      types.Network
	rpcURL       string
	eth          *ethclient.Client
	key          *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	erc20        *ERC20
	approver     Approver
	pollInterval time.Duration
	log          logger.Logger
}

type EVMOption func(*EVMProvider)

// WithApprover sets the prompt used before account access and signing.
// Defaults to AutoApprover.
func WithApprover(a Approver) EVMOption {
	return func(p *EVMProvider) {
		if a != nil {
			p.approver = a
		}
	}
}

// WithChainID pins the chain id instead of asking the node.
func WithChainID(id int64) EVMOption {
	return func(p *EVMProvider) {
		if id > 0 {
			p.chainID = big.NewInt(id)
		}
	}
}

// WithPollInterval sets how often receipts are polled while waiting.
func WithPollInterval(d time.Duration) EVMOption {
	return func(p *EVMProvider) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithProviderLogger(l logger.Logger) EVMOption {
	return func(p *EVMProvider) {
		if l != nil {
			p.log = l
		}
	}
}

// NewEVMProvider dials rpcURL and loads the wallet key. A missing key or an
// unreachable endpoint yields an error wrapping ErrNoProvider.
func NewEVMProvider(ctx context.Context, network types.Network, rpcURL, privateKeyHex string, opts ...EVMOption) (*EVMProvider, error) {
	key, err := utils.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid wallet key: %v", ErrNoProvider, err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: ethereum rpc dial: %v", ErrNoProvider, err)
	}

	erc20, err := NewERC20()
	if err != nil {
		eth.Close()
		return nil, err
	}

	p := &EVMProvider{
		network:      network,
		rpcURL:       rpcURL,
		eth:          eth,
		key:          key,
		address:      utils.AddressFromPrivateKey(key),
		erc20:        erc20,
		approver:     AutoApprover{},
		pollInterval: defaultPollInterval,
		log:          logger.NoopLogger{},
	}
	if id := network.ChainID(); id > 0 {
		p.chainID = big.NewInt(id)
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.With(p.log, map[string]any{"component": "evm_provider"})

	return p, nil
}

// GetNetwork implements Provider.
func (p *EVMProvider) GetNetwork() types.Network {
	return p.network
}

// Close implements Provider.
func (p *EVMProvider) Close() {
	p.eth.Close()
}

// RequestAccounts implements Provider. The holder is prompted, then the key
// signs a challenge that is verified before the address is handed out.
func (p *EVMProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	account := p.address.Hex()

	if err := p.approver.Confirm(ctx, SigningRequest{
		Kind:    SigningRequestAccounts,
		Network: p.network,
		Account: account,
	}); err != nil {
		return nil, err
	}

	sig, err := utils.SignPersonalMessage(connectChallenge, p.key)
	if err != nil {
		return nil, err
	}
	ok, err := utils.VerifyPersonalMessage(connectChallenge, sig, p.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: wallet key does not control %s", ErrNoProvider, account)
	}

	if _, err := p.chain(ctx); err != nil {
		return nil, err
	}

	p.log.Debug("account access granted", map[string]any{"account": account, "network": p.network.String()})
	return []string{account}, nil
}

// GetBalance implements Provider.
func (p *EVMProvider) GetBalance(ctx context.Context, token, address string) (*big.Int, error) {
	data, err := p.erc20.PackBalanceOf(common.HexToAddress(address))
	if err != nil {
		return nil, err
	}

	tokenAddr := common.HexToAddress(token)
	out, err := p.eth.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}

	return p.erc20.UnpackBalanceOf(out)
}

// Approve implements Provider.
func (p *EVMProvider) Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error) {
	data, err := p.erc20.PackApprove(common.HexToAddress(spender), amount)
	if err != nil {
		return "", err
	}
	return p.submit(ctx, SigningRequest{
		Kind:         SigningApprove,
		Network:      p.network,
		Account:      p.address.Hex(),
		Token:        token,
		Counterparty: spender,
		Amount:       amount,
	}, data)
}

// Transfer implements Provider.
func (p *EVMProvider) Transfer(ctx context.Context, token, recipient string, amount *big.Int) (string, error) {
	data, err := p.erc20.PackTransfer(common.HexToAddress(recipient), amount)
	if err != nil {
		return "", err
	}
	return p.submit(ctx, SigningRequest{
		Kind:         SigningTransfer,
		Network:      p.network,
		Account:      p.address.Hex(),
		Token:        token,
		Counterparty: recipient,
		Amount:       amount,
	}, data)
}

// submit prompts for the signature, then signs and broadcasts a call to the
// token contract.
func (p *EVMProvider) submit(ctx context.Context, req SigningRequest, callData []byte) (string, error) {
	if err := p.approver.Confirm(ctx, req); err != nil {
		return "", err
	}

	chainID, err := p.chain(ctx)
	if err != nil {
		return "", err
	}

	tokenAddr := common.HexToAddress(req.Token)

	gasLimit, err := p.eth.EstimateGas(ctx, ethereum.CallMsg{From: p.address, To: &tokenAddr, Data: callData})
	if err != nil {
		return "", fmt.Errorf("estimate gas failed: %w", err)
	}

	gasPrice, err := p.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price failed: %w", err)
	}

	nonce, err := p.eth.PendingNonceAt(ctx, p.address)
	if err != nil {
		return "", fmt.Errorf("pending nonce failed: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &tokenAddr,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     callData,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), p.key)
	if err != nil {
		return "", fmt.Errorf("sign tx failed: %w", err)
	}

	if err := p.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx failed: %w", err)
	}

	hash := signed.Hash().Hex()
	p.log.Info("transaction submitted", map[string]any{
		"kind":    string(req.Kind),
		"tx":      hash,
		"nonce":   nonce,
		"gas":     gasLimit,
		"network": p.network.String(),
	})
	return hash, nil
}

// WaitForConfirmation implements Provider by polling for the receipt until it
// appears or ctx is done.
func (p *EVMProvider) WaitForConfirmation(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.eth.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted in block %s", txHash, receipt.BlockNumber)
			}
			p.log.Debug("transaction confirmed", map[string]any{"tx": txHash, "block": receipt.BlockNumber.String()})
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("receipt for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Address returns the wallet address.
func (p *EVMProvider) Address() common.Address {
	return p.address
}

func (p *EVMProvider) chain(ctx context.Context) (*big.Int, error) {
	if p.chainID != nil {
		return p.chainID, nil
	}
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id fetch failed: %w", err)
	}
	p.chainID = id
	return id, nil
}
