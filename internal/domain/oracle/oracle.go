// Package oracle defines the NFT price feed the protocol reads valuations from.
package oracle

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

var (
	ErrPriceNotFound = errors.New("Price not available")
	ErrStalePrice    = errors.New("Stale price")
	ErrZeroPrice     = errors.New("Price must be greater than 0")
)

// Price is one published observation. TokenID is nil for a collection-level
// floor price.
type Price struct {
	Contract  common.Address `json:"nft_address"`
	TokenID   *u256.Int      `json:"token_id,omitempty"`
	Amount    u256.Int       `json:"amount"`
	UpdatedAt int64          `json:"updated_at"`
}

// PriceOracle resolves the price of one token, falling back to the price of
// its collection.
type PriceOracle interface {
	GetNFTPrice(ctx context.Context, contract common.Address, tokenID u256.Int) (u256.Int, error)
}
