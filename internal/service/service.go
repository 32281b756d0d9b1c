package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"house-of-david/backend/config"
	"house-of-david/backend/internal/repository"
	"house-of-david/backend/pkg/jwt"
	"house-of-david/backend/pkg/metrics"
)

// TokenBlacklist 注销 Token 的存储（Redis），为 nil 时登出仅由客户端丢弃 Token
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// Service 所有 Service 的聚合入口
type Service struct {
	Auth       AuthService
	Attendance AttendanceService
	Stats      StatsService
	Export     ExportService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	resolver := NewIdentityResolver(repo, m, logger)
	return &Service{
		Auth:       NewAuthService(repo, jwtMgr, blacklist, logger),
		Attendance: NewAttendanceService(&cfg.Attendance, repo, resolver, m, logger),
		Stats:      NewStatsService(repo, logger),
		Export:     NewExportService(&cfg.Attendance, repo, logger),
	}
}
