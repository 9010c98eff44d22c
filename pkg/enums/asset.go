package enums

import "fmt"

// Asset identifies a settlement asset held in custodial balances.
type Asset string

const (
	AssetETH  Asset = "ETH"
	AssetUSDC Asset = "USDC"
)

var validAssets = []Asset{
	AssetETH,
	AssetUSDC,
}

// String implements fmt.Stringer.
func (a Asset) String() string {
	return string(a)
}

// IsValid reports whether the asset is recognized.
func (a Asset) IsValid() bool {
	for _, candidate := range validAssets {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAsset converts a raw string into an Asset.
func ParseAsset(value string) (Asset, error) {
	for _, candidate := range validAssets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid asset %q", value)
}
