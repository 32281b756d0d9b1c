package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"house-of-david/backend/internal/repository"
	"house-of-david/backend/pkg/metrics"
)

// IdentityMatch 手机号在用户/会员名录中的匹配结果
type IdentityMatch struct {
	UserID   *string
	MemberID *string
}

// Registered 匹配到任一名录即视为已注册
func (m IdentityMatch) Registered() bool {
	return m.UserID != nil || m.MemberID != nil
}

// IdentityResolver 按手机号关联账号与会员
type IdentityResolver interface {
	// Resolve 从不返回错误：查询失败时记录日志并按未匹配处理
	Resolve(ctx context.Context, phone string) IdentityMatch
}

type identityResolver struct {
	repo    *repository.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewIdentityResolver 创建 IdentityResolver 实例
func NewIdentityResolver(repo *repository.Repository, m *metrics.Metrics, logger *zap.Logger) IdentityResolver {
	return &identityResolver{repo: repo, metrics: m, logger: logger}
}

func (r *identityResolver) Resolve(ctx context.Context, phone string) IdentityMatch {
	var userID, memberID *string

	// 两个名录互不依赖，并行查询
	var g errgroup.Group
	g.Go(func() error {
		user, err := r.repo.User.GetByPhone(ctx, phone)
		switch {
		case err == nil:
			id := user.UserID
			userID = &id
		case !errors.Is(err, gorm.ErrRecordNotFound):
			r.lookupFailed("user", err)
		}
		return nil
	})
	g.Go(func() error {
		member, err := r.repo.Member.GetByPhone(ctx, phone)
		switch {
		case err == nil:
			id := member.MemberID
			memberID = &id
		case !errors.Is(err, gorm.ErrRecordNotFound):
			r.lookupFailed("member", err)
		}
		return nil
	})
	_ = g.Wait()

	return IdentityMatch{UserID: userID, MemberID: memberID}
}

func (r *identityResolver) lookupFailed(directory string, err error) {
	r.logger.Warn("手机号身份匹配失败，按未注册处理",
		zap.String("directory", directory),
		zap.Error(err),
	)
	r.metrics.IdentityLookupFailed(directory)
}
