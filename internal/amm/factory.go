package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"constantProduct/internal/model"
)

var (
	authorityDomain   = []byte("amm/pool-authority")
	shareIssuerDomain = []byte("amm/lp-share")
)

// CreatePool validates the pool parameters and returns an empty pool.
func CreatePool(assetA, assetB common.Address, feeNumerator, feeDenominator uint64) (model.Pool, error) {
	if feeDenominator == 0 {
		return model.Pool{}, ErrInvalidFee
	}
	if assetA == assetB {
		return model.Pool{}, ErrInvalidAssetPair
	}

	seed, authority := DeriveAuthority(assetA, assetB)
	return model.Pool{
		AssetA:         assetA,
		AssetB:         assetB,
		FeeNumerator:   feeNumerator,
		FeeDenominator: feeDenominator,
		ShareIssuer:    DeriveShareIssuer(assetA, assetB),
		Authority:      authority,
		AuthoritySeed:  seed,
	}, nil
}

// DeriveAuthority returns the seed and account that own the reserves of the
// (assetA, assetB) pool.
func DeriveAuthority(assetA, assetB common.Address) (common.Hash, common.Address) {
	seed := crypto.Keccak256Hash(authorityDomain, assetA.Bytes(), assetB.Bytes())
	return seed, common.BytesToAddress(seed.Bytes())
}

// DeriveShareIssuer returns the asset identifier of the pool's LP shares.
func DeriveShareIssuer(assetA, assetB common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(shareIssuerDomain, assetA.Bytes(), assetB.Bytes()))
}

// VerifyAuthority reports whether the pool's authority, seed and share issuer
// are the ones derived from its asset pair.
func VerifyAuthority(pool model.Pool) bool {
	seed, authority := DeriveAuthority(pool.AssetA, pool.AssetB)
	return seed == pool.AuthoritySeed &&
		authority == pool.Authority &&
		DeriveShareIssuer(pool.AssetA, pool.AssetB) == pool.ShareIssuer
}
