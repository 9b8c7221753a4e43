package user

import (
	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/core/common/validation"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

type CreateUserDTO struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
}

type UpdateProfileDTO struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type ChangeRoleDTO struct {
	Role string `json:"role"`
}

type ResetPasswordDTO struct {
	Password string `json:"password"`
}

type UsersResponse struct {
	Users []*User `json:"users"`
}

func (d CreateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	validation.ValidateUsername(v, NormalizeUsername(d.Username))
	validation.ValidatePassword(v, "password", d.Password)
	v.Field("display_name", d.DisplayName).Required().MaxLength(120)
	v.Field("email", d.Email).MaxLength(255)
	v.Field("phone", d.Phone).MaxLength(32)
	v.Field("role", d.Role).Required().OneOf(role.Strings(role.All()), internal.ErrCodeInvalidRole)
	return v.Validate()
}

func (d UpdateProfileDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("display_name", d.DisplayName).Required().MaxLength(120)
	v.Field("email", d.Email).MaxLength(255)
	v.Field("phone", d.Phone).MaxLength(32)
	return v.Validate()
}

func (d ChangeRoleDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("role", d.Role).Required().OneOf(role.Strings(role.All()), internal.ErrCodeInvalidRole)
	return v.Validate()
}

func (d ResetPasswordDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	validation.ValidatePassword(v, "password", d.Password)
	return v.Validate()
}
