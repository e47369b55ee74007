// Package chain holds the per-chain deployment table. Application logic never
// branches on chain identity beyond selecting a Descriptor.
package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/imperfectform/predictbot/internal/domain"
)

// Currency describes a chain's native currency.
type Currency struct {
	Name     string `json:"name" toml:"name"`
	Symbol   string `json:"symbol" toml:"symbol"`
	Decimals int32  `json:"decimals" toml:"decimals"`
}

// Descriptor is one market deployment.
type Descriptor struct {
	Key             string         `json:"key"`
	Name            string         `json:"name"`
	RPCURL          string         `json:"-"`
	ChainID         uint64         `json:"chainId"`
	ContractAddress common.Address `json:"contractAddress"`
	NativeCurrency  Currency       `json:"nativeCurrency"`
	BlockExplorer   string         `json:"blockExplorer"`
	Testnet         bool           `json:"testnet"`
}

// TxURL returns the block-explorer link for a transaction hash.
func (d Descriptor) TxURL(txHash string) string {
	if d.BlockExplorer == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(d.BlockExplorer, "/") + "/tx/" + txHash
}

// AddressURL returns the block-explorer link for an address.
func (d Descriptor) AddressURL(addr common.Address) string {
	if d.BlockExplorer == "" {
		return ""
	}
	return strings.TrimRight(d.BlockExplorer, "/") + "/address/" + addr.Hex()
}

// Defaults returns the built-in deployments: Base as the production chain and
// Celo as the low-fee chain. Contract addresses are filled from config.
func Defaults() []Descriptor {
	return []Descriptor{
		{
			Key:            "base",
			Name:           "Base",
			RPCURL:         "https://mainnet.base.org",
			ChainID:        8453,
			NativeCurrency: Currency{Name: "Ether", Symbol: "ETH", Decimals: 18},
			BlockExplorer:  "https://basescan.org",
		},
		{
			Key:            "celo",
			Name:           "Celo",
			RPCURL:         "https://forno.celo.org",
			ChainID:        42220,
			NativeCurrency: Currency{Name: "Celo", Symbol: "CELO", Decimals: 18},
			BlockExplorer:  "https://celoscan.io",
		},
	}
}

// Registry resolves chain keys to descriptors.
type Registry struct {
	chains       map[string]Descriptor
	defaultChain string
}

// NewRegistry builds a registry. Keys are case-insensitive; the default must
// be one of the descriptors.
func NewRegistry(descs []Descriptor, defaultChain string) (*Registry, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("chain: new registry: %w: no chains configured", domain.ErrValidation)
	}
	r := &Registry{chains: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		key := normalize(d.Key)
		if key == "" {
			return nil, fmt.Errorf("chain: new registry: %w: chain without key", domain.ErrValidation)
		}
		if _, dup := r.chains[key]; dup {
			return nil, fmt.Errorf("chain: new registry: %w: duplicate chain %q", domain.ErrValidation, key)
		}
		d.Key = key
		r.chains[key] = d
	}
	if defaultChain == "" {
		defaultChain = descs[0].Key
	}
	r.defaultChain = normalize(defaultChain)
	if _, ok := r.chains[r.defaultChain]; !ok {
		return nil, fmt.Errorf("chain: new registry: %w: default chain %q not configured", domain.ErrValidation, defaultChain)
	}
	return r, nil
}

func normalize(key string) string { return strings.ToLower(strings.TrimSpace(key)) }

// Get returns the descriptor for key. An empty key selects the default chain.
func (r *Registry) Get(key string) (Descriptor, error) {
	if strings.TrimSpace(key) == "" {
		key = r.defaultChain
	}
	d, ok := r.chains[normalize(key)]
	if !ok {
		return Descriptor{}, fmt.Errorf("chain: unsupported chain %q: %w", key, domain.ErrNotFound)
	}
	return d, nil
}

// Default returns the default descriptor.
func (r *Registry) Default() Descriptor { return r.chains[r.defaultChain] }

// Keys returns the configured chain keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.chains))
	for k := range r.chains {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns every descriptor in key order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.chains))
	for _, k := range r.Keys() {
		out = append(out, r.chains[k])
	}
	return out
}
