package account

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPaymentRejected     = errors.New("recipient rejected payment")
	ErrZeroAddress         = errors.New("transfer to the zero address")
	// ErrCustodyCaller rejects calls made in the name of a protocol
	// component or escrow; only the protocol moves what they hold.
	ErrCustodyCaller = errors.New("caller is a protocol custody account")
)

// Account is a native-currency balance on the chain ledger. RejectsPayments
// models a recipient whose receive hook reverts.
type Account struct {
	Address         common.Address `gorm:"column:address;primaryKey;size:20"`
	Balance         u256.Int       `gorm:"column:balance;size:78;not null"`
	RejectsPayments bool           `gorm:"column:rejects_payments;not null;default:false"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }
