package clients

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{ "name": "owner", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "approve",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "spender", "type": "address" },
      { "name": "amount", "type": "uint256" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "transfer",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "to", "type": "address" },
      { "name": "amount", "type": "uint256" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  }
]`

// ERC20 packs and unpacks the three token calls the storefront uses.
type ERC20 struct {
	abi abi.ABI
}

func NewERC20() (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20{abi: parsed}, nil
}

func (e *ERC20) PackBalanceOf(owner common.Address) ([]byte, error) {
	return e.abi.Pack("balanceOf", owner)
}

func (e *ERC20) UnpackBalanceOf(out []byte) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("empty balanceOf result")
	}
	values, err := e.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}
	return bal, nil
}

func (e *ERC20) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return e.abi.Pack("approve", spender, amount)
}

func (e *ERC20) PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return e.abi.Pack("transfer", to, amount)
}
