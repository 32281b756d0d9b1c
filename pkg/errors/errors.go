package errors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ── 签到存储层错误 ──

var (
	// ErrSessionNotActive 会话已关闭，无法追加签名或刷新
	ErrSessionNotActive = errors.New("签到会话未处于开放状态")
	// ErrSignatureExists 同一会话内该手机号已签到
	ErrSignatureExists = errors.New("该手机号已在本会话签到")
	// ErrActiveSessionConflict 单一开放会话约束冲突
	ErrActiveSessionConflict = errors.New("已存在其他开放中的签到会话")
)

// PostgreSQL 唯一约束冲突错误码
const pgUniqueViolation = "23505"

// IsUniqueViolation 判断 err 是否为指定约束的唯一键冲突
// constraint 为空时匹配任意唯一约束
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
