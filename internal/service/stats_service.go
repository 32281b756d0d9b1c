package service

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"house-of-david/backend/internal/dto"
	"house-of-david/backend/internal/model"
	"house-of-david/backend/internal/repository"
)

var ErrMemberNotFound = errors.New("会员不存在")

// StatsService 出勤统计业务接口
// 每次请求基于全部会话（含进行中的会话）实时计算，不做缓存
type StatsService interface {
	MyStats(ctx context.Context, userID string) (*dto.AttendanceStatsResponse, error)
	MemberStats(ctx context.Context, memberID string) (*dto.AttendanceStatsResponse, error)
	OrgStats(ctx context.Context) (*dto.OrgAttendanceStatsResponse, error)
}

type statsService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewStatsService 创建 StatsService 实例
func NewStatsService(repo *repository.Repository, logger *zap.Logger) StatsService {
	return &statsService{repo: repo, logger: logger}
}

func (s *statsService) MyStats(ctx context.Context, userID string) (*dto.AttendanceStatsResponse, error) {
	sessions, err := s.repo.AttendanceSession.ListForStats(ctx)
	if err != nil {
		s.logger.Error("加载会话失败", zap.Error(err))
		return nil, err
	}

	return attendanceOf(sessions, func(sig *model.AttendanceSignature) bool {
		return sig.UserID != nil && *sig.UserID == userID
	}), nil
}

func (s *statsService) MemberStats(ctx context.Context, memberID string) (*dto.AttendanceStatsResponse, error) {
	member, err := s.repo.Member.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		s.logger.Error("查询会员失败", zap.String("member_id", memberID), zap.Error(err))
		return nil, err
	}
	// 以库中规范形式匹配，路径参数可能是大写 UUID
	canonicalID := member.MemberID

	sessions, err := s.repo.AttendanceSession.ListForStats(ctx)
	if err != nil {
		s.logger.Error("加载会话失败", zap.Error(err))
		return nil, err
	}

	return attendanceOf(sessions, func(sig *model.AttendanceSignature) bool {
		return sig.MemberID != nil && *sig.MemberID == canonicalID
	}), nil
}

func (s *statsService) OrgStats(ctx context.Context) (*dto.OrgAttendanceStatsResponse, error) {
	var (
		sessions     []model.AttendanceSession
		totalMembers int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = s.repo.AttendanceSession.ListForStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		totalMembers, err = s.repo.Member.CountActive(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("加载组织统计数据失败", zap.Error(err))
		return nil, err
	}

	totalSessions := int64(len(sessions))
	var totalAttendances int64
	for i := range sessions {
		totalAttendances += int64(len(sessions[i].Signatures))
	}
	possible := totalMembers * totalSessions

	resp := &dto.OrgAttendanceStatsResponse{
		TotalSessions:            totalSessions,
		TotalMembers:             totalMembers,
		TotalAttendances:         totalAttendances,
		TotalPossibleAttendances: possible,
		MissedAttendances:        possible - totalAttendances,
	}
	if possible > 0 {
		resp.OrganizationAttendanceRate = roundOne(float64(totalAttendances) / float64(possible) * 100)
	}
	if totalSessions > 0 {
		resp.AverageAttendancePerSession = roundOne(float64(totalAttendances) / float64(totalSessions))
	}
	return resp, nil
}

// ── 辅助函数 ──

// attendanceOf 统计满足 match 的签名出现过的会话数
func attendanceOf(sessions []model.AttendanceSession, match func(*model.AttendanceSignature) bool) *dto.AttendanceStatsResponse {
	attended := 0
	for i := range sessions {
		for j := range sessions[i].Signatures {
			if match(&sessions[i].Signatures[j]) {
				attended++
				break
			}
		}
	}

	total := len(sessions)
	resp := &dto.AttendanceStatsResponse{
		TotalSessions: total,
		Attended:      attended,
		Missed:        total - attended,
	}
	if total > 0 {
		resp.AttendanceRate = roundOne(float64(attended) / float64(total) * 100)
	}
	return resp
}

// roundOne 保留一位小数，四舍五入
func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}
