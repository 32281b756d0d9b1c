package dto

import "time"

// ── 签到会话请求 ──

// CreateSessionRequest 开启签到会话请求
type CreateSessionRequest struct {
	SessionName string `json:"sessionName" binding:"max=200"`
	Description string `json:"description" binding:"max=2000"`
}

// SignAttendanceRequest 签到请求（公开接口）
// 字段校验全部在 Service 层完成，会话状态错误优先于格式错误
type SignAttendanceRequest struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Signature   string `json:"signature"`
}

// ── 签到会话响应 ──

// ActiveSessionResponse 当前开放会话摘要（公开，不含签名内容）
type ActiveSessionResponse struct {
	ID             string    `json:"_id"`
	SessionName    string    `json:"sessionName"`
	Description    string    `json:"description"`
	OpenedAt       time.Time `json:"openedAt"`
	SignatureCount int64     `json:"signatureCount"`
}

// SignAttendanceResponse 签到结果
type SignAttendanceResponse struct {
	SignatureCount  int64 `json:"signatureCount"`
	LinkedToAccount bool  `json:"linkedToAccount"`
}

// PersonRef 创建人/关闭人简要信息
type PersonRef struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// SignatureResponse 单条签名
type SignatureResponse struct {
	ID           string    `json:"_id"`
	FullName     string    `json:"fullName"`
	PhoneNumber  string    `json:"phoneNumber"`
	Signature    string    `json:"signature,omitempty"` // 仅会话详情返回
	SignedAt     time.Time `json:"signedAt"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserID       *string   `json:"userId"`
	MemberID     *string   `json:"memberId"`
	IsRegistered bool      `json:"isRegistered"`
}

// SessionResponse 会话详情（管理端）
type SessionResponse struct {
	ID             string              `json:"_id"`
	SessionName    string              `json:"sessionName"`
	Description    string              `json:"description"`
	Status         string              `json:"status"`
	OpenedAt       time.Time           `json:"openedAt"`
	ClosedAt       *time.Time          `json:"closedAt"`
	CreatedBy      *PersonRef          `json:"createdBy"`
	ClosedBy       *PersonRef          `json:"closedBy"`
	SignatureCount int                 `json:"signatureCount"`
	Signatures     []SignatureResponse `json:"signatures"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// ── 出勤统计 ──

// AttendanceStatsResponse 个人/会员出勤统计
type AttendanceStatsResponse struct {
	TotalSessions  int     `json:"totalSessions"`
	Attended       int     `json:"attended"`
	Missed         int     `json:"missed"`
	AttendanceRate float64 `json:"attendanceRate"`
}

// OrgAttendanceStatsResponse 全组织出勤统计
type OrgAttendanceStatsResponse struct {
	TotalSessions               int64   `json:"totalSessions"`
	TotalMembers                int64   `json:"totalMembers"`
	TotalAttendances            int64   `json:"totalAttendances"`
	TotalPossibleAttendances    int64   `json:"totalPossibleAttendances"`
	MissedAttendances           int64   `json:"missedAttendances"`
	OrganizationAttendanceRate  float64 `json:"organizationAttendanceRate"`
	AverageAttendancePerSession float64 `json:"averageAttendancePerSession"`
}
