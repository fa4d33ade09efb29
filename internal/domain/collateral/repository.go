package collateral

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

type Repository interface {
	CreateEscrow(ctx context.Context, e *Escrow) error
	// FindEscrow returns ErrEscrowNotFound when the triple has no escrow.
	FindEscrow(ctx context.Context, contract common.Address, tokenID u256.Int, loanID uint64) (*Escrow, error)
	GetEscrowByAddress(ctx context.Context, addr common.Address) (*Escrow, error)
	SaveEscrow(ctx context.Context, e *Escrow) error
	ListEscrowsByLoan(ctx context.Context, loanID uint64) ([]Escrow, error)

	// FindActiveRecord returns (nil, nil) when no active record exists.
	FindActiveRecord(ctx context.Context, contract common.Address, tokenID u256.Int, loanID uint64) (*Record, error)
	CreateRecord(ctx context.Context, r *Record) error
	SaveRecord(ctx context.Context, r *Record) error
	ListRecordsByLoan(ctx context.Context, loanID uint64) ([]Record, error)

	SaveDelegate(ctx context.Context, d *Delegate) error
	IsDelegate(ctx context.Context, escrowID uint64, addr common.Address) (bool, error)
	ListDelegates(ctx context.Context, escrowID uint64) ([]common.Address, error)

	GetPartnerInterface(ctx context.Context, id string) (*PartnerInterface, error)
	SavePartnerInterface(ctx context.Context, p *PartnerInterface) error
	ListPartnerInterfaces(ctx context.Context) ([]PartnerInterface, error)

	CreateBenefitClaim(ctx context.Context, c *BenefitClaim) error
	ListBenefitClaims(ctx context.Context, escrowID uint64) ([]BenefitClaim, error)
}

// BenefitCaller forwards a call from an escrow to an external benefit
// contract. A returned error means the call reverted.
type BenefitCaller interface {
	Call(ctx context.Context, escrow, target common.Address, payload []byte) ([]byte, error)
}
