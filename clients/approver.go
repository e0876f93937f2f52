package clients

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vitwit/usdcpay/utils"
)

// AutoApprover accepts every request. Useful for scripted runs.
type AutoApprover struct{}

func (AutoApprover) Confirm(context.Context, SigningRequest) error { return nil }

// TerminalApprover asks on out and reads a y/N answer from in.
type TerminalApprover struct {
	in       *bufio.Reader
	out      io.Writer
	symbol   string
	decimals int32
}

func NewTerminalApprover(in io.Reader, out io.Writer, symbol string, decimals int32) *TerminalApprover {
	return &TerminalApprover{
		in:       bufio.NewReader(in),
		out:      out,
		symbol:   symbol,
		decimals: decimals,
	}
}

// Confirm implements Approver. Anything but "y" or "yes" is a rejection,
// including end of input.
func (t *TerminalApprover) Confirm(ctx context.Context, req SigningRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(t.out, "%s [y/N]: ", t.Describe(req))

	answer, err := t.in.ReadString('\n')
	if err != nil && answer == "" {
		if err == io.EOF {
			return ErrUserRejected
		}
		return err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return ErrUserRejected
	}
}

// Describe renders the prompt text for req.
func (t *TerminalApprover) Describe(req SigningRequest) string {
	switch req.Kind {
	case SigningRequestAccounts:
		return fmt.Sprintf("Connect account %s on %s?", req.Account, req.Network)
	case SigningApprove:
		return fmt.Sprintf("Sign approval: allow %s to spend %s %s?",
			req.Counterparty, utils.FormatUnits(req.Amount, t.decimals), t.symbol)
	case SigningTransfer:
		return fmt.Sprintf("Sign transfer: send %s %s to %s?",
			utils.FormatUnits(req.Amount, t.decimals), t.symbol, req.Counterparty)
	default:
		return fmt.Sprintf("Sign %s request?", req.Kind)
	}
}
