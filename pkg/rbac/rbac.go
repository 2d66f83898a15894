package rbac

import (
	"fmt"

	"github.com/google/uuid"
)

// Role 组织内角色
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Permission 权限常量
type Permission string

const (
	// 读权限
	PermissionReadOrg       Permission = "org:read"
	PermissionReadProject   Permission = "project:read"
	PermissionReadAnalytics Permission = "analytics:read"

	// 普通写权限
	PermissionCreateProject Permission = "project:create"
	PermissionUpdateProject Permission = "project:update"
	PermissionWriteTask     Permission = "task:write"
	PermissionLogTime       Permission = "time:log"
	PermissionComment       Permission = "comment:write"
	PermissionUploadFile    Permission = "file:upload"
	PermissionManageGoals   Permission = "goal:write"
	PermissionUseAI         Permission = "ai:use"
	PermissionImport        Permission = "data:import"

	// 敏感操作权限
	PermissionDeleteProject  Permission = "project:delete"
	PermissionModerate       Permission = "content:moderate"
	PermissionManageMembers  Permission = "member:manage"
	PermissionManageAIPolicy Permission = "ai_policy:manage"
	PermissionManageOrg      Permission = "org:manage"
)

var rank = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

var viewerPermissions = []Permission{
	PermissionReadOrg,
	PermissionReadProject,
	PermissionReadAnalytics,
}

var memberPermissions = append(append([]Permission{}, viewerPermissions...),
	PermissionCreateProject,
	PermissionUpdateProject,
	PermissionWriteTask,
	PermissionLogTime,
	PermissionComment,
	PermissionUploadFile,
	PermissionManageGoals,
	PermissionUseAI,
	PermissionImport,
)

var adminPermissions = append(append([]Permission{}, memberPermissions...),
	PermissionDeleteProject,
	PermissionModerate,
	PermissionManageMembers,
	PermissionManageAIPolicy,
)

// 角色权限映射
var rolePermissions = map[Role][]Permission{
	RoleViewer: viewerPermissions,
	RoleMember: memberPermissions,
	RoleAdmin:  adminPermissions,
	RoleOwner:  append(append([]Permission{}, adminPermissions...), PermissionManageOrg),
}

// Valid 是否是已知角色
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// AtLeast 判断角色是否不低于 other
func (r Role) AtLeast(other Role) bool {
	return rank[r] >= rank[other] && rank[r] > 0
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限，返回错误而不是布尔值，便于处理
func CheckPermission(userID uuid.UUID, role Role, permission Permission) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionsFor 返回角色的全部权限（/me 接口展示用）
func PermissionsFor(role Role) []Permission {
	return append([]Permission(nil), rolePermissions[role]...)
}

// PermissionDeniedError 表示权限不足
type PermissionDeniedError struct {
	UserID     uuid.UUID
	Role       Role
	Permission Permission
}

func (e *PermissionDeniedError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("insufficient permissions: %s requires organization membership", e.Permission)
	}
	return fmt.Sprintf("insufficient permissions: role %s lacks %s", e.Role, e.Permission)
}

// ValidateUserIDInPayload 校验 payload 中的 user_id 与会话用户一致
func ValidateUserIDInPayload(sessionUserID uuid.UUID, payloadUserID uuid.UUID) error {
	if payloadUserID != uuid.Nil && payloadUserID != sessionUserID {
		return &UserIDMismatchError{
			SessionUserID: sessionUserID,
			PayloadUserID: payloadUserID,
		}
	}
	return nil
}

// UserIDMismatchError 表示 user_id 不匹配
type UserIDMismatchError struct {
	SessionUserID uuid.UUID
	PayloadUserID uuid.UUID
}

func (e *UserIDMismatchError) Error() string {
	return "user_id in payload does not match session"
}
