// Command usdcpay is a terminal storefront: it connects a local wallet,
// shows its USDC balance and buys the configured product.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/vitwit/usdcpay"
	"github.com/vitwit/usdcpay/clients"
	"github.com/vitwit/usdcpay/config"
	"github.com/vitwit/usdcpay/payment"
	"github.com/vitwit/usdcpay/types"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, toml or json)")
	autoApprove := flag.Bool("yes", false, "approve every wallet prompt without asking")
	dumpMetrics := flag.Bool("metrics", false, "print collected metrics on exit")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		printVersion(os.Stdout, usdcpay.GetVersion())
		return
	}

	os.Exit(run(*configPath, *autoApprove, *dumpMetrics))
}

func run(configPath string, autoApprove, dumpMetrics bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	if dumpMetrics {
		cfg.Store.EnableMetrics = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var approver clients.Approver = clients.AutoApprover{}
	if !autoApprove {
		approver = clients.NewTerminalApprover(os.Stdin, os.Stdout, cfg.Store.TokenSymbol, cfg.Store.TokenDecimals)
	}

	store, err := usdcpay.NewEVMStorefront(ctx, &cfg.Store, cfg.WalletKey, approver,
		usdcpay.WithNotifier(payment.NotifierFunc(alert)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting storefront: %v\n", err)
		return 1
	}
	defer store.Close()

	code := shop(ctx, store, os.Stdout)

	if dumpMetrics {
		if err := writeMetrics(os.Stdout, prometheus.DefaultGatherer); err != nil {
			fmt.Fprintf(os.Stderr, "writing metrics: %v\n", err)
		}
	}
	return code
}

func shop(ctx context.Context, store *usdcpay.Storefront, out io.Writer) int {
	product := store.Product()
	fmt.Fprintf(out, "\n  %s\n  Price: %s\n  Network: %s\n\n", product.Name, product.Price, networkLabel(store.Config().Network))

	session, err := store.Connect(ctx)
	if err != nil {
		return 1
	}
	fmt.Fprintf(out, "Connected: %s\n", session.Address)

	balance := store.Balance()
	if balance.Loaded {
		fmt.Fprintf(out, "Balance: %s\n", balance)
	} else {
		fmt.Fprintln(out, "Balance: unavailable")
	}

	fmt.Fprintln(out, "Processing...")
	receipt, err := store.Buy(ctx)
	if err != nil {
		return 1
	}

	printReceipt(out, receipt)
	return 0
}

func printReceipt(out io.Writer, r *types.Receipt) {
	fmt.Fprintln(out, "\nReceipt")
	fmt.Fprintf(out, "  Item:        %s\n", r.ItemName)
	fmt.Fprintf(out, "  Amount:      %s\n", r.PurchaseAmount)
	fmt.Fprintf(out, "  Transaction: %s\n", r.TransactionHash)
	fmt.Fprintf(out, "  Approval:    %s\n", r.ApprovalHash)
	fmt.Fprintf(out, "  Date:        %s\n", r.Date)
	if r.ExplorerURL != "" {
		fmt.Fprintf(out, "  View:        %s\n", r.ExplorerURL)
	}
}

func networkLabel(n types.Network) string {
	if n.IsTestnet() {
		return n.String() + " (testnet)"
	}
	return n.String()
}

func printVersion(out io.Writer, v map[string]interface{}) {
	fmt.Fprintf(out, "usdcpay %v\n", v["library_version"])
	fmt.Fprintf(out, "networks: %v\n", v["supported_networks"])
	fmt.Fprintf(out, "standards: %v\n", v["supported_standards"])
}

func alert(n payment.Notice) {
	if n.Level == payment.NoticeError {
		fmt.Fprintf(os.Stderr, "[!] %s\n", n.Message)
		return
	}
	fmt.Fprintf(os.Stdout, "[i] %s\n", n.Message)
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
