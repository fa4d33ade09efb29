package event

import (
	"time"
)

// Event types. Every state change and every degraded-path signal is recorded
// so monitoring can distinguish full success from partial completion.
const (
	TypeProposalCreated            = "proposal.created"
	TypeCounterOfferCreated        = "proposal.counter_offer_created"
	TypeProposalAccepted           = "proposal.accepted"
	TypeProposalCancelled          = "proposal.cancelled"
	TypeCounterOfferRejected       = "proposal.counter_offer_rejected"
	TypeOfferExpired               = "proposal.offer_expired"
	TypeProposalVerificationFailed = "proposal.verification_failed"
	TypeFundsLocked                = "proposal.funds_locked"
	TypeFundsUnlocked              = "proposal.funds_unlocked"

	TypeLoanCreated           = "loan.created"
	TypeLoanRepaid            = "loan.repaid"
	TypeLoanPartiallyRepaid   = "loan.partially_repaid"
	TypeLoanLiquidated        = "loan.liquidated"
	TypeCollateralReleaseFail = "collateral.release_failed"
	TypePaymentRerouted       = "payment.rerouted"
	TypeInterestFallback      = "loan.interest_fallback"

	TypeEscrowCreated       = "escrow.created"
	TypeCollateralAdded     = "collateral.added"
	TypeCollateralRemoved   = "collateral.removed"
	TypeDelegateAdded       = "escrow.delegate_added"
	TypeDelegateRemoved     = "escrow.delegate_removed"
	TypeBenefitsClaimed     = "escrow.benefits_claimed"
	TypePartnerRegistered   = "escrow.partner_interface_registered"
	TypePartnerDeregistered = "escrow.partner_interface_deregistered"

	TypeVaultDeposit      = "vault.deposit"
	TypeVaultWithdraw     = "vault.withdraw"
	TypeVaultInterest     = "vault.interest_processed"
	TypeEmergencyWithdraw = "vault.emergency_withdraw"

	TypePaused           = "admin.paused"
	TypeUnpaused         = "admin.unpaused"
	TypeOwnerTransferred = "admin.owner_transferred"
)

// Event is an append-only audit entry.
type Event struct {
	ID         uint64            `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	EventID    string            `gorm:"column:event_id;type:char(32);not null;uniqueIndex" json:"event_id"`
	Type       string            `gorm:"column:type;size:64;not null;index" json:"type"`
	ProposalID uint64            `gorm:"column:proposal_id;index" json:"proposal_id,omitempty"`
	LoanID     uint64            `gorm:"column:loan_id;index" json:"loan_id,omitempty"`
	Attributes map[string]string `gorm:"column:attributes;serializer:json" json:"attributes"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Event) TableName() string { return "events" }

// New builds an event with the given attribute pairs (key, value, key, value…).
func New(kind string, kv ...string) *Event {
	attrs := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	return &Event{Type: kind, Attributes: attrs}
}

func (e *Event) ForProposal(id uint64) *Event {
	e.ProposalID = id
	return e
}

func (e *Event) ForLoan(id uint64) *Event {
	e.LoanID = id
	return e
}
