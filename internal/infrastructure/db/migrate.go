package db

import (
	"gorm.io/gorm"

	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/admin"
	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/proposal"
	"nftlend-backend/internal/domain/vault"
)

// Models lists every persisted entity.
func Models() []any {
	return []any{
		&admin.State{},
		&account.Account{},
		&nft.Token{},
		&nft.OperatorApproval{},
		&proposal.Proposal{},
		&proposal.Collateral{},
		&proposal.LockedFunds{},
		&loan.Loan{},
		&loan.Collateral{},
		&collateral.Escrow{},
		&collateral.Record{},
		&collateral.Delegate{},
		&collateral.PartnerInterface{},
		&collateral.BenefitClaim{},
		&vault.Balance{},
		&vault.Entry{},
		&event.Event{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
