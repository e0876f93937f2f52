package types

import (
	"sort"
	"strings"
)

// Network represents a supported EVM network
type Network string

const (
	NetworkEthereum    Network = "ethereum"
	NetworkSepolia     Network = "sepolia" // testnet
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet
)

var networkChainIDs = map[Network]int64{
	NetworkEthereum:    1,
	NetworkSepolia:     11155111,
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
	NetworkPolygon:     137,
	NetworkPolygonAmoy: 80002,
}

var networkExplorers = map[Network]string{
	NetworkEthereum:    "https://etherscan.io/tx/",
	NetworkSepolia:     "https://sepolia.etherscan.io/tx/",
	NetworkBase:        "https://basescan.org/tx/",
	NetworkBaseSepolia: "https://sepolia.basescan.org/tx/",
	NetworkPolygon:     "https://polygonscan.com/tx/",
	NetworkPolygonAmoy: "https://amoy.polygonscan.com/tx/",
}

// KnownNetworks lists the built-in networks sorted by name.
func KnownNetworks() []Network {
	out := make([]Network, 0, len(networkChainIDs))
	for n := range networkChainIDs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsKnown reports whether the network is one of the built-in EVM networks.
func (n Network) IsKnown() bool {
	_, ok := networkChainIDs[n]
	return ok
}

// IsTestnet reports whether the network is a test network
func (n Network) IsTestnet() bool {
	return n == NetworkSepolia || n == NetworkBaseSepolia || n == NetworkPolygonAmoy
}

// ChainID returns the chain id of a known network, or 0.
func (n Network) ChainID() int64 {
	return networkChainIDs[n]
}

// ExplorerTxURL returns the default explorer prefix for transaction links.
func (n Network) ExplorerTxURL() string {
	return networkExplorers[n]
}

func (n Network) String() string {
	return string(n)
}

// TxLink joins an explorer base URL and a transaction hash.
func TxLink(explorerURL, txHash string) string {
	if explorerURL == "" || txHash == "" {
		return ""
	}
	if !strings.HasSuffix(explorerURL, "/") {
		explorerURL += "/"
	}
	return explorerURL + txHash
}
