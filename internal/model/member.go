package model

// 会员状态
const (
	MemberStatusActive   = "Active"
	MemberStatusInactive = "Inactive"
)

// Member 会员名录，对应 members
// 仅供签到身份匹配与统计读取，维护由会员模块负责
type Member struct {
	MemberID  string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"_id"`
	FirstName string  `gorm:"type:varchar(100);not null"                     json:"firstName"`
	LastName  string  `gorm:"type:varchar(100);not null"                     json:"lastName"`
	Email     *string `gorm:"type:varchar(255)"                              json:"email,omitempty"`
	Phone     *string `gorm:"type:varchar(30)"                               json:"phone,omitempty"`
	Status    string  `gorm:"type:varchar(20);not null;default:'Active'"     json:"status"`
	TimestampModel
}

// TableName 指定表名
func (Member) TableName() string { return "members" }
