package vault

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

var (
	ErrZeroDeposit          = errors.New("Deposit amount must be greater than 0")
	ErrZeroWithdraw         = errors.New("Withdraw amount must be greater than 0")
	ErrInsufficientBalance  = errors.New("Insufficient vault balance")
	ErrUnauthorizedWithdraw = errors.New("Not authorized to withdraw")
	ErrOnlyLoanEngine       = errors.New("Only loan engine")
	ErrLoanNotFound         = errors.New("Loan not found")
)

type EntryKind string

const (
	EntryDeposit   EntryKind = "deposit"
	EntryWithdraw  EntryKind = "withdraw"
	EntryInterest  EntryKind = "interest"
	EntryEmergency EntryKind = "emergency"
)

// reroutedPrefix marks deposits of payments that could not reach their
// recipient.
const reroutedPrefix = "rerouted:"

func ReroutedMemo(purpose string) string { return reroutedPrefix + purpose }

func IsRerouted(memo string) bool { return strings.HasPrefix(memo, reroutedPrefix) }

// Balance is the per-loan holding pool. Rerouted is the part of Balance held
// for recipients whose payment failed; the borrower can never withdraw it.
type Balance struct {
	LoanID          uint64    `gorm:"column:loan_id;primaryKey;autoIncrement:false" json:"loan_id"`
	Balance         u256.Int  `gorm:"column:balance;size:78;not null" json:"balance"`
	Rerouted        u256.Int  `gorm:"column:rerouted;size:78;not null;default:'0'" json:"rerouted"`
	InterestAccrued u256.Int  `gorm:"column:interest_accrued;size:78;not null" json:"interest_accrued"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string { return "vault_balances" }

func (b *Balance) Credit(amount u256.Int) error {
	next, err := b.Balance.Add(amount)
	if err != nil {
		return err
	}
	b.Balance = next
	return nil
}

// CreditRerouted books a parked payment.
func (b *Balance) CreditRerouted(amount u256.Int) error {
	rerouted, err := b.Rerouted.Add(amount)
	if err != nil {
		return err
	}
	if err := b.Credit(amount); err != nil {
		return err
	}
	b.Rerouted = rerouted
	return nil
}

// Available is the part of the pool not held for rerouted payments.
func (b *Balance) Available() u256.Int {
	v, err := b.Balance.Sub(b.Rerouted)
	if err != nil {
		return u256.Zero
	}
	return v
}

// Debit takes amount from the whole pool, rerouted payments first.
func (b *Balance) Debit(amount u256.Int) error {
	next, err := b.Balance.Sub(amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	rerouted, err := b.Rerouted.Sub(u256.Min(amount, b.Rerouted))
	if err != nil {
		return err
	}
	b.Balance, b.Rerouted = next, rerouted
	return nil
}

// DebitAvailable takes amount without touching rerouted payments.
func (b *Balance) DebitAvailable(amount u256.Int) error {
	if b.Available().Lt(amount) {
		return ErrInsufficientBalance
	}
	next, err := b.Balance.Sub(amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	b.Balance = next
	return nil
}

// DebitRerouted takes amount out of the rerouted payments only.
func (b *Balance) DebitRerouted(amount u256.Int) error {
	if b.Rerouted.Lt(amount) {
		return ErrInsufficientBalance
	}
	return b.Debit(amount)
}

// Entry is one line of the append-only vault ledger. Every balance change
// has a matching entry.
type Entry struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	LoanID    uint64         `gorm:"column:loan_id;not null;index" json:"loan_id"`
	Kind      EntryKind      `gorm:"column:kind;size:16;not null" json:"kind"`
	Amount    u256.Int       `gorm:"column:amount;size:78;not null" json:"amount"`
	Actor     common.Address `gorm:"column:actor;size:20;not null" json:"actor"`
	Memo      string         `gorm:"column:memo;size:64" json:"memo,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Entry) TableName() string { return "vault_entries" }
