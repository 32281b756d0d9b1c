package repository

import (
	"context"

	"gorm.io/gorm"

	"house-of-david/backend/internal/model"
)

// MemberRepository 会员名录只读访问接口
type MemberRepository interface {
	GetByID(ctx context.Context, id string) (*model.Member, error)
	GetByPhone(ctx context.Context, phone string) (*model.Member, error)
	CountActive(ctx context.Context) (int64, error)
}

type memberRepo struct {
	db *gorm.DB
}

// NewMemberRepo 创建 MemberRepository 实例
func NewMemberRepo(db *gorm.DB) MemberRepository {
	return &memberRepo{db: db}
}

func (r *memberRepo) GetByID(ctx context.Context, id string) (*model.Member, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}

	var member model.Member
	err := r.db.WithContext(ctx).
		Where("member_id = ?", id).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepo) GetByPhone(ctx context.Context, phone string) (*model.Member, error) {
	var member model.Member
	err := r.db.WithContext(ctx).
		Where("phone = ?", phone).
		Order("created_at ASC").
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Member{}).
		Where("status = ?", model.MemberStatusActive).
		Count(&count).Error
	return count, err
}
