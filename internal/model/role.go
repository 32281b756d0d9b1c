package model

import "strings"

// Role 单个角色（位标志）
type Role uint8

const (
	RoleUser Role = 1 << iota
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = []struct {
	role Role
	name string
}{
	{RoleUser, "user"},
	{RoleAdmin, "admin"},
	{RoleSuperAdmin, "superadmin"},
}

// String 返回角色名（与 JWT / 数据库中存储的名称一致）
func (r Role) String() string {
	for _, rn := range roleNames {
		if rn.role == r {
			return rn.name
		}
	}
	return "unknown"
}

// ParseRole 解析角色名，大小写不敏感
func ParseRole(name string) (Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, rn := range roleNames {
		if rn.name == name {
			return rn.role, true
		}
	}
	return 0, false
}

// RoleSet 角色集合
type RoleSet uint8

// NewRoleSet 由若干角色构造集合
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s |= RoleSet(r)
	}
	return s
}

// ParseRoles 解析角色名列表，未知角色忽略
func ParseRoles(names []string) RoleSet {
	var s RoleSet
	for _, n := range names {
		if r, ok := ParseRole(n); ok {
			s |= RoleSet(r)
		}
	}
	return s
}

// Has 是否包含指定角色
func (s RoleSet) Has(r Role) bool {
	return s&RoleSet(r) != 0
}

// HasAny 是否包含任一指定角色
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// IsAdmin admin 或 superadmin
func (s RoleSet) IsAdmin() bool {
	return s.HasAny(RoleAdmin, RoleSuperAdmin)
}

// Strings 按固定顺序返回角色名
func (s RoleSet) Strings() []string {
	names := make([]string, 0, len(roleNames))
	for _, rn := range roleNames {
		if s.Has(rn.role) {
			names = append(names, rn.name)
		}
	}
	return names
}
