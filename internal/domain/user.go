package domain

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	DisplayName        string     `json:"display_name,omitempty"`
	AuthProvider       string     `json:"auth_provider,omitempty"`
	AuthSubject        string     `json:"-"`
	PasswordHash       string     `json:"-"`
	EmailVerifiedAt    *time.Time `json:"email_verified_at,omitempty"`
	IsTwoFactorEnabled bool       `json:"is_two_factor_enabled"`
	Role               Role       `json:"role"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasPassword indica si la cuenta admite login con credenciales.
// Las cuentas creadas solo por OAuth no tienen hash.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (u User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}
