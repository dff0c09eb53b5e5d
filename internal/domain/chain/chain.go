// internal/domain/chain/chain.go
package chain

import "fmt"

// Descriptor holds the static per-network metadata embedded in every event
// payload via its chain id. The registry is fixed for the process lifetime.
type Descriptor struct {
	ID       int64
	Name     string
	Slug     string
	Currency string
}

var registry = []Descriptor{
	{ID: 666666666, Name: "Degen Mainnet", Slug: "degen", Currency: "degen"},
	{ID: 42161, Name: "Arbitrum One", Slug: "arbitrum", Currency: "eth"},
	{ID: 8453, Name: "Base Network", Slug: "base", Currency: "eth"},
}

// ByID looks up the descriptor for a chain id.
func ByID(chainID int64) (Descriptor, error) {
	for _, d := range registry {
		if d.ID == chainID {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("unknown chain id: %d", chainID)
}

// IsSupported reports whether a chain id belongs to the registry.
func IsSupported(chainID int64) bool {
	_, err := ByID(chainID)
	return err == nil
}
