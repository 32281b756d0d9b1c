package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"house-of-david/backend/config"
	"house-of-david/backend/internal/dto"
	"house-of-david/backend/internal/model"
	"house-of-david/backend/internal/repository"
	pkgerrors "house-of-david/backend/pkg/errors"
	"house-of-david/backend/pkg/metrics"
)

var (
	ErrValidation              = errors.New("参数校验失败")
	ErrSessionNameRequired     = fmt.Errorf("%w: 会话名称不能为空", ErrValidation)
	ErrSignatureFieldsRequired = fmt.Errorf("%w: 姓名、手机号和签名均为必填项", ErrValidation)
	ErrSignatureTooLarge       = fmt.Errorf("%w: 签名图片过大", ErrValidation)
	ErrSignatureFieldTooLong   = fmt.Errorf("%w: 姓名或手机号过长", ErrValidation)

	ErrSessionNotFound       = errors.New("签到会话不存在")
	ErrSessionClosed         = errors.New("签到会话已关闭")
	ErrSessionNotRefreshable = errors.New("只能刷新进行中的签到会话")
	ErrDuplicateSignature    = errors.New("该手机号已在本次会话中签到")
	ErrSessionOpenConflict   = errors.New("存在并发开启的签到会话，请重试")
)

// 与 attendance_signatures 列宽一致
const (
	maxFullNameLen = 200
	maxPhoneLen    = 30
)

// AttendanceService 签到会话业务接口
type AttendanceService interface {
	// GetActive 当前开放会话摘要，无开放会话时返回 nil, nil
	GetActive(ctx context.Context) (*dto.ActiveSessionResponse, error)
	Sign(ctx context.Context, sessionID string, req *dto.SignAttendanceRequest, remoteAddr string) (*dto.SignAttendanceResponse, error)

	Open(ctx context.Context, req *dto.CreateSessionRequest, creatorID string) (*dto.SessionResponse, error)
	Close(ctx context.Context, id string, closerID string) (*dto.SessionResponse, error)
	Refresh(ctx context.Context, id string) (*dto.SessionResponse, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]dto.SessionResponse, error)
	Get(ctx context.Context, id string) (*dto.SessionResponse, error)
}

type attendanceService struct {
	cfg      *config.AttendanceConfig
	repo     *repository.Repository
	resolver IdentityResolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(
	cfg *config.AttendanceConfig,
	repo *repository.Repository,
	resolver IdentityResolver,
	m *metrics.Metrics,
	logger *zap.Logger,
) AttendanceService {
	return &attendanceService{
		cfg:      cfg,
		repo:     repo,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ────────────────────── 公开接口 ──────────────────────

func (s *attendanceService) GetActive(ctx context.Context) (*dto.ActiveSessionResponse, error) {
	session, err := s.repo.AttendanceSession.GetActive(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.logger.Error("查询开放会话失败", zap.Error(err))
		return nil, err
	}

	count, err := s.repo.AttendanceSession.CountSignatures(ctx, session.SessionID)
	if err != nil {
		s.logger.Error("统计签名数失败", zap.String("session_id", session.SessionID), zap.Error(err))
		return nil, err
	}

	return &dto.ActiveSessionResponse{
		ID:             session.SessionID,
		SessionName:    session.SessionName,
		Description:    session.Description,
		OpenedAt:       session.OpenedAt,
		SignatureCount: count,
	}, nil
}

func (s *attendanceService) Sign(ctx context.Context, sessionID string, req *dto.SignAttendanceRequest, remoteAddr string) (*dto.SignAttendanceResponse, error) {
	fullName := strings.TrimSpace(req.FullName)
	phone := strings.TrimSpace(req.PhoneNumber)
	if fullName == "" || phone == "" || strings.TrimSpace(req.Signature) == "" {
		s.metrics.SignatureResult(metrics.ReasonInvalid)
		return nil, ErrSignatureFieldsRequired
	}

	// 1. 会话存在且开放
	session, err := s.repo.AttendanceSession.GetByID(ctx, sessionID)
	if err != nil {
		return nil, s.signFailed(sessionID, err)
	}
	if !session.IsActive() {
		s.metrics.SignatureResult(metrics.ReasonClosed)
		return nil, ErrSessionClosed
	}

	// 手机号按原样匹配，只限制列宽
	if utf8.RuneCountInString(fullName) > maxFullNameLen || utf8.RuneCountInString(phone) > maxPhoneLen {
		s.metrics.SignatureResult(metrics.ReasonInvalid)
		return nil, ErrSignatureFieldTooLong
	}
	if s.cfg.MaxSignatureBytes > 0 && len(req.Signature) > s.cfg.MaxSignatureBytes {
		s.metrics.SignatureResult(metrics.ReasonInvalid)
		return nil, ErrSignatureTooLarge
	}

	// 2. 快速查重；并发情况由唯一约束兜底
	exists, err := s.repo.AttendanceSession.HasSignature(ctx, sessionID, phone)
	if err != nil {
		return nil, s.signFailed(sessionID, err)
	}
	if exists {
		s.metrics.SignatureResult(metrics.ReasonDuplicate)
		return nil, ErrDuplicateSignature
	}

	// 3. 身份关联
	match := s.resolver.Resolve(ctx, phone)

	// 4. 原子追加
	sig := &model.AttendanceSignature{
		SessionID:    sessionID,
		FullName:     fullName,
		PhoneNumber:  phone,
		Signature:    req.Signature,
		SignedAt:     s.now(),
		IPAddress:    remoteAddr,
		UserID:       match.UserID,
		MemberID:     match.MemberID,
		IsRegistered: match.Registered(),
	}
	count, err := s.repo.AttendanceSession.AppendSignature(ctx, sig)
	if err != nil {
		return nil, s.signFailed(sessionID, err)
	}

	s.metrics.SignatureResult(metrics.ReasonAccepted)
	s.logger.Info("签到成功",
		zap.String("session_id", sessionID),
		zap.Int64("signature_count", count),
		zap.Bool("registered", match.Registered()),
	)

	return &dto.SignAttendanceResponse{
		SignatureCount:  count,
		LinkedToAccount: match.Registered(),
	}, nil
}

// signFailed 将仓储层错误映射为签到业务错误并计数
func (s *attendanceService) signFailed(sessionID string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.metrics.SignatureResult(metrics.ReasonNotFound)
		return ErrSessionNotFound
	case errors.Is(err, pkgerrors.ErrSessionNotActive):
		s.metrics.SignatureResult(metrics.ReasonClosed)
		return ErrSessionClosed
	case errors.Is(err, pkgerrors.ErrSignatureExists):
		s.metrics.SignatureResult(metrics.ReasonDuplicate)
		return ErrDuplicateSignature
	default:
		s.metrics.SignatureResult(metrics.ReasonError)
		s.logger.Error("签到失败", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
}

// ────────────────────── 生命周期（管理端） ──────────────────────

func (s *attendanceService) Open(ctx context.Context, req *dto.CreateSessionRequest, creatorID string) (*dto.SessionResponse, error) {
	name := strings.TrimSpace(req.SessionName)
	if name == "" {
		return nil, ErrSessionNameRequired
	}

	now := s.now()
	session := &model.AttendanceSession{
		SessionName: name,
		Description: strings.TrimSpace(req.Description),
		Status:      model.SessionStatusActive,
		OpenedAt:    now,
		CreatedBy:   creatorID,
	}

	closed, err := s.repo.AttendanceSession.Open(ctx, session)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrActiveSessionConflict) {
			s.logger.Warn("开启会话冲突", zap.String("creator_id", creatorID))
			return nil, ErrSessionOpenConflict
		}
		s.logger.Error("开启签到会话失败", zap.Error(err))
		return nil, err
	}

	s.metrics.SessionEvent("opened")
	s.logger.Info("签到会话已开启",
		zap.String("session_id", session.SessionID),
		zap.String("creator_id", creatorID),
		zap.Int64("auto_closed", closed),
	)

	resp := toSessionResponse(session, false)
	return &resp, nil
}

func (s *attendanceService) Close(ctx context.Context, id string, closerID string) (*dto.SessionResponse, error) {
	session, err := s.repo.AttendanceSession.Close(ctx, id, closerID, s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error("关闭签到会话失败", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}

	s.metrics.SessionEvent("closed")
	s.logger.Info("签到会话已关闭",
		zap.String("session_id", id),
		zap.String("closer_id", closerID),
		zap.Int("signature_count", len(session.Signatures)),
	)

	resp := toSessionResponse(session, true)
	return &resp, nil
}

func (s *attendanceService) Refresh(ctx context.Context, id string) (*dto.SessionResponse, error) {
	session, err := s.repo.AttendanceSession.Refresh(ctx, id, s.now())
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, pkgerrors.ErrSessionNotActive):
			return nil, ErrSessionNotRefreshable
		}
		s.logger.Error("刷新签到会话失败", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}

	s.metrics.SessionEvent("refreshed")
	s.logger.Info("签到会话已刷新", zap.String("session_id", id))

	resp := toSessionResponse(session, false)
	return &resp, nil
}

func (s *attendanceService) Delete(ctx context.Context, id string) error {
	if err := s.repo.AttendanceSession.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		s.logger.Error("删除签到会话失败", zap.String("session_id", id), zap.Error(err))
		return err
	}

	s.metrics.SessionEvent("deleted")
	s.logger.Info("签到会话已删除", zap.String("session_id", id))
	return nil
}

// ────────────────────── 查询（管理端） ──────────────────────

func (s *attendanceService) List(ctx context.Context) ([]dto.SessionResponse, error) {
	sessions, err := s.repo.AttendanceSession.List(ctx)
	if err != nil {
		s.logger.Error("查询签到会话列表失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		result = append(result, toSessionResponse(&sessions[i], false))
	}
	return result, nil
}

func (s *attendanceService) Get(ctx context.Context, id string) (*dto.SessionResponse, error) {
	session, err := s.repo.AttendanceSession.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error("查询签到会话失败", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}

	resp := toSessionResponse(session, true)
	return &resp, nil
}

// ── 辅助函数 ──

func toSessionResponse(session *model.AttendanceSession, withBlob bool) dto.SessionResponse {
	resp := dto.SessionResponse{
		ID:             session.SessionID,
		SessionName:    session.SessionName,
		Description:    session.Description,
		Status:         string(session.Status),
		OpenedAt:       session.OpenedAt,
		ClosedAt:       session.ClosedAt,
		CreatedBy:      toPersonRef(session.Creator, &session.CreatedBy),
		ClosedBy:       toPersonRef(session.Closer, session.ClosedBy),
		SignatureCount: len(session.Signatures),
		Signatures:     make([]dto.SignatureResponse, 0, len(session.Signatures)),
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      session.UpdatedAt,
	}

	for _, sig := range session.Signatures {
		item := dto.SignatureResponse{
			ID:           sig.SignatureID,
			FullName:     sig.FullName,
			PhoneNumber:  sig.PhoneNumber,
			SignedAt:     sig.SignedAt,
			IPAddress:    sig.IPAddress,
			UserID:       sig.UserID,
			MemberID:     sig.MemberID,
			IsRegistered: sig.IsRegistered,
		}
		if withBlob {
			item.Signature = sig.Signature
		}
		resp.Signatures = append(resp.Signatures, item)
	}
	return resp
}

// toPersonRef 已预加载时返回完整信息，否则仅返回 ID
func toPersonRef(user *model.User, id *string) *dto.PersonRef {
	if user != nil {
		return &dto.PersonRef{
			ID:        user.UserID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
		}
	}
	if id == nil || *id == "" {
		return nil
	}
	return &dto.PersonRef{ID: *id}
}
