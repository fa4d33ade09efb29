package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"nftlend-backend/internal/domain/admin"
)

type AdminRepository struct{ db *gorm.DB }

func NewAdminRepository(db *gorm.DB) *AdminRepository { return &AdminRepository{db: db} }

func (r *AdminRepository) Get(ctx context.Context) (*admin.State, error) {
	var out admin.State
	if err := r.db.WithContext(ctx).Order("id ASC").First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, admin.ErrNotInitiated
		}
		return nil, err
	}
	return &out, nil
}

func (r *AdminRepository) Save(ctx context.Context, s *admin.State) error {
	return r.db.WithContext(ctx).Save(s).Error
}
