package model

import "time"

// SessionStatus 签到会话状态
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "Active"
	SessionStatusClosed SessionStatus = "Closed"
)

// AttendanceSession 签到会话表，对应 attendance_sessions
// 全库同一时间至多一个 Active 会话（由部分唯一索引保证）
type AttendanceSession struct {
	SessionID   string        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"_id"`
	SessionName string        `gorm:"type:varchar(200);not null"                     json:"sessionName"`
	Description string        `gorm:"type:text"                                      json:"description"`
	Status      SessionStatus `gorm:"type:varchar(10);not null;default:'Active'"     json:"status"`
	OpenedAt    time.Time     `gorm:"not null"                                       json:"openedAt"`
	ClosedAt    *time.Time    `json:"closedAt,omitempty"`
	CreatedBy   string        `gorm:"type:uuid;not null"                             json:"createdBy"`
	ClosedBy    *string       `gorm:"type:uuid"                                      json:"closedBy,omitempty"`
	TimestampModel

	// 关联
	Creator    *User                 `gorm:"foreignKey:CreatedBy;references:UserID"   json:"creator,omitempty"`
	Closer     *User                 `gorm:"foreignKey:ClosedBy;references:UserID"    json:"closer,omitempty"`
	Signatures []AttendanceSignature `gorm:"foreignKey:SessionID;references:SessionID" json:"signatures,omitempty"`
}

// TableName 指定表名
func (AttendanceSession) TableName() string { return "attendance_sessions" }

// IsActive 会话是否仍接受签名
func (s *AttendanceSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

// AttendanceSignature 签名记录表，对应 attendance_signatures
// 创建后不可修改；同一会话内 phone_number 唯一；seq 为到达顺序
type AttendanceSignature struct {
	SignatureID  string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"_id"`
	SessionID    string    `gorm:"type:uuid;not null"                             json:"sessionId"`
	Seq          int64     `gorm:"->"                                             json:"-"`
	FullName     string    `gorm:"type:varchar(200);not null"                     json:"fullName"`
	PhoneNumber  string    `gorm:"type:varchar(30);not null"                      json:"phoneNumber"`
	Signature    string    `gorm:"type:text;not null"                             json:"signature,omitempty"` // base64 签名图片
	SignedAt     time.Time `gorm:"not null"                                       json:"signedAt"`
	IPAddress    string    `gorm:"column:ip_address;type:varchar(64)"             json:"ipAddress"`
	UserID       *string   `gorm:"type:uuid"                                      json:"userId,omitempty"`
	MemberID     *string   `gorm:"type:uuid"                                      json:"memberId,omitempty"`
	IsRegistered bool      `gorm:"not null;default:false"                         json:"isRegistered"`
}

// TableName 指定表名
func (AttendanceSignature) TableName() string { return "attendance_signatures" }
