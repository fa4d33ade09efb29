package vault

import "context"

type Repository interface {
	// GetBalance returns a zero balance for loans never deposited to.
	GetBalance(ctx context.Context, loanID uint64) (*Balance, error)
	SaveBalance(ctx context.Context, b *Balance) error
	AddEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, loanID uint64) ([]Entry, error)
}
