package event

import "context"

// Filter narrows List; zero fields match everything.
type Filter struct {
	Type       string
	ProposalID uint64
	LoanID     uint64
	Limit      int
}

type Repository interface {
	Create(ctx context.Context, e *Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}
