package model

// User 可登录账号，对应 users
type User struct {
	UserID       string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"_id"`
	FirstName    string      `gorm:"type:varchar(100);not null"                     json:"firstName"`
	LastName     string      `gorm:"type:varchar(100);not null"                     json:"lastName"`
	Email        string      `gorm:"type:varchar(255);not null"                     json:"email"`
	Phone        *string     `gorm:"type:varchar(30)"                               json:"phone,omitempty"`
	PasswordHash string      `gorm:"type:varchar(255);not null"                     json:"-"`
	Roles        StringArray `gorm:"type:text[];not null;default:'{user}'"          json:"role"`
	IsActive     bool        `gorm:"not null;default:true"                          json:"isActive"`
	TimestampModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// RoleSet 解析后的角色集合
func (u *User) RoleSet() RoleSet {
	return ParseRoles(u.Roles)
}

// FullName 姓名
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
