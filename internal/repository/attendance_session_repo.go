package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"house-of-david/backend/internal/model"
	pkgerrors "house-of-david/backend/pkg/errors"
)

// 数据库约束名（见 migrations/000001_init_schema.up.sql）
const (
	constraintSingleActive = "uq_attendance_sessions_single_active"
	constraintSessionPhone = "uq_attendance_signatures_session_phone"
)

// openSessionLockKey 开启会话时使用的事务级 advisory lock 键
const openSessionLockKey int64 = 0x484f445f41545431 // "HOD_ATT1"

// 列表/统计查询不加载签名图片
var signatureSummaryColumns = []string{
	"signature_id", "session_id", "seq", "full_name", "phone_number",
	"signed_at", "ip_address", "user_id", "member_id", "is_registered",
}

// AttendanceSessionRepository 签到会话数据访问接口
// 会话与签名的所有写操作只经由此接口
type AttendanceSessionRepository interface {
	// Open 关闭所有 Active 会话后创建新会话，返回被关闭的会话数
	Open(ctx context.Context, session *model.AttendanceSession) (int64, error)
	GetByID(ctx context.Context, id string) (*model.AttendanceSession, error)
	// GetDetail 加载创建人/关闭人及完整签名（含签名图片）
	GetDetail(ctx context.Context, id string) (*model.AttendanceSession, error)
	GetActive(ctx context.Context) (*model.AttendanceSession, error)
	CountSignatures(ctx context.Context, sessionID string) (int64, error)
	HasSignature(ctx context.Context, sessionID, phoneNumber string) (bool, error)
	// List 全部会话（开启时间倒序），签名不含图片
	List(ctx context.Context) ([]model.AttendanceSession, error)
	// ListForStats 全部会话及签名的身份关联字段
	ListForStats(ctx context.Context) ([]model.AttendanceSession, error)
	Close(ctx context.Context, id, closerID string, closedAt time.Time) (*model.AttendanceSession, error)
	Refresh(ctx context.Context, id string, openedAt time.Time) (*model.AttendanceSession, error)
	Delete(ctx context.Context, id string) error
	// AppendSignature 原子追加签名，返回追加后的签名总数
	AppendSignature(ctx context.Context, sig *model.AttendanceSignature) (int64, error)
}

type attendanceSessionRepo struct {
	db *gorm.DB
}

// NewAttendanceSessionRepo 创建 AttendanceSessionRepository 实例
func NewAttendanceSessionRepo(db *gorm.DB) AttendanceSessionRepository {
	return &attendanceSessionRepo{db: db}
}

// isUUID 非法 ID 直接按不存在处理，避免 PostgreSQL 类型转换错误
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func preloadPeople(db *gorm.DB) *gorm.DB {
	return db.Select("user_id", "first_name", "last_name", "email")
}

// ────────────────────── 生命周期 ──────────────────────

func (r *attendanceSessionRepo) Open(ctx context.Context, session *model.AttendanceSession) (int64, error) {
	var closed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 串行化并发的开启操作；部分唯一索引为最终保障
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", openSessionLockKey).Error; err != nil {
			return err
		}

		res := tx.Model(&model.AttendanceSession{}).
			Where("status = ?", model.SessionStatusActive).
			Updates(map[string]interface{}{
				"status":     model.SessionStatusClosed,
				"closed_at":  session.OpenedAt,
				"closed_by":  session.CreatedBy,
				"updated_at": session.OpenedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		closed = res.RowsAffected

		session.Status = model.SessionStatusActive
		if err := tx.Create(session).Error; err != nil {
			if pkgerrors.IsUniqueViolation(err, constraintSingleActive) {
				return pkgerrors.ErrActiveSessionConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return closed, nil
}

func (r *attendanceSessionRepo) Close(ctx context.Context, id, closerID string, closedAt time.Time) (*model.AttendanceSession, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}

	res := r.db.WithContext(ctx).
		Model(&model.AttendanceSession{}).
		Where("session_id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.SessionStatusClosed,
			"closed_at":  closedAt,
			"closed_by":  closerID,
			"updated_at": closedAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return r.GetDetail(ctx, id)
}

func (r *attendanceSessionRepo) Refresh(ctx context.Context, id string, openedAt time.Time) (*model.AttendanceSession, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}

	var session model.AttendanceSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 行锁与签名追加的 FOR SHARE 互斥
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", id).
			First(&session).Error; err != nil {
			return err
		}
		if !session.IsActive() {
			return pkgerrors.ErrSessionNotActive
		}

		if err := tx.Where("session_id = ?", id).
			Delete(&model.AttendanceSignature{}).Error; err != nil {
			return err
		}

		session.OpenedAt = openedAt
		session.UpdatedAt = openedAt
		return tx.Model(&model.AttendanceSession{}).
			Where("session_id = ?", id).
			Updates(map[string]interface{}{
				"opened_at":  openedAt,
				"updated_at": openedAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	session.Signatures = []model.AttendanceSignature{}
	return &session, nil
}

func (r *attendanceSessionRepo) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return gorm.ErrRecordNotFound
	}

	// 签名随外键 ON DELETE CASCADE 删除
	res := r.db.WithContext(ctx).
		Where("session_id = ?", id).
		Delete(&model.AttendanceSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ────────────────────── 签名 ──────────────────────

func (r *attendanceSessionRepo) AppendSignature(ctx context.Context, sig *model.AttendanceSignature) (int64, error) {
	if !isUUID(sig.SessionID) {
		return 0, gorm.ErrRecordNotFound
	}

	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// FOR SHARE：阻塞并发的关闭/刷新，保证追加时会话仍为 Active
		var session model.AttendanceSession
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("session_id", "status").
			Where("session_id = ?", sig.SessionID).
			First(&session).Error; err != nil {
			return err
		}
		if !session.IsActive() {
			return pkgerrors.ErrSessionNotActive
		}

		// (session_id, phone_number) 唯一约束保证并发同号签到只有一条成功
		if err := tx.Create(sig).Error; err != nil {
			if pkgerrors.IsUniqueViolation(err, constraintSessionPhone) {
				return pkgerrors.ErrSignatureExists
			}
			return err
		}

		return tx.Model(&model.AttendanceSignature{}).
			Where("session_id = ?", sig.SessionID).
			Count(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *attendanceSessionRepo) CountSignatures(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceSignature{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *attendanceSessionRepo) HasSignature(ctx context.Context, sessionID, phoneNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceSignature{}).
		Where("session_id = ? AND phone_number = ?", sessionID, phoneNumber).
		Count(&count).Error
	return count > 0, err
}

// ────────────────────── 查询 ──────────────────────

func (r *attendanceSessionRepo) GetByID(ctx context.Context, id string) (*model.AttendanceSession, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}

	var session model.AttendanceSession
	err := r.db.WithContext(ctx).
		Where("session_id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *attendanceSessionRepo) GetDetail(ctx context.Context, id string) (*model.AttendanceSession, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}

	var session model.AttendanceSession
	err := r.db.WithContext(ctx).
		Preload("Creator", preloadPeople).
		Preload("Closer", preloadPeople).
		Preload("Signatures", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("session_id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *attendanceSessionRepo) GetActive(ctx context.Context) (*model.AttendanceSession, error) {
	var session model.AttendanceSession
	err := r.db.WithContext(ctx).
		Where("status = ?", model.SessionStatusActive).
		Order("opened_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *attendanceSessionRepo) List(ctx context.Context) ([]model.AttendanceSession, error) {
	var sessions []model.AttendanceSession
	err := r.db.WithContext(ctx).
		Preload("Creator", preloadPeople).
		Preload("Closer", preloadPeople).
		Preload("Signatures", func(db *gorm.DB) *gorm.DB {
			return db.Select(signatureSummaryColumns).Order("seq ASC")
		}).
		Order("opened_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *attendanceSessionRepo) ListForStats(ctx context.Context) ([]model.AttendanceSession, error) {
	var sessions []model.AttendanceSession
	err := r.db.WithContext(ctx).
		Select("session_id", "status", "opened_at").
		Preload("Signatures", func(db *gorm.DB) *gorm.DB {
			return db.Select("signature_id", "session_id", "user_id", "member_id")
		}).
		Order("opened_at ASC").
		Find(&sessions).Error
	return sessions, err
}
