package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type Repository interface {
	// Get never fails for unknown addresses: it returns an empty account.
	Get(ctx context.Context, addr common.Address) (*Account, error)
	Save(ctx context.Context, a *Account) error
}
