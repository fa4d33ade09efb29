package mysql

import (
	"context"

	"gorm.io/gorm"

	"nftlend-backend/internal/domain/event"
	"nftlend-backend/pkg/id"
)

type EventRepository struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) *EventRepository { return &EventRepository{db: db} }

func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	if e.EventID == "" {
		e.EventID = id.NewID32()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *EventRepository) List(ctx context.Context, f event.Filter) ([]event.Event, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.ProposalID != 0 {
		q = q.Where("proposal_id = ?", f.ProposalID)
	}
	if f.LoanID != 0 {
		q = q.Where("loan_id = ?", f.LoanID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []event.Event
	err := q.Find(&out).Error
	return out, err
}
