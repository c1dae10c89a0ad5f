package model

import "time"

// Role はプロフィールのロール。
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleSalesRep  Role = "sales_rep"
	RoleMarketing Role = "marketing"
	RoleSupport   Role = "support"
	RoleUser      Role = "user"
)

var validRoles = map[Role]struct{}{
	RoleAdmin:     {},
	RoleManager:   {},
	RoleSalesRep:  {},
	RoleMarketing: {},
	RoleSupport:   {},
	RoleUser:      {},
}

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	_, ok := validRoles[r]
	return ok
}

// Profile はIdentityと1対1に対応するアプリケーション上のユーザー情報。
// 削除はされず、無効化のみ行う。
type Profile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	AvatarURL  *string   `json:"avatar_url"`
	Department string    `json:"department"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsAdmin はプロフィールが管理者ロールかどうかを返す。
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
