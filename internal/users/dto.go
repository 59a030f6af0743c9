package users

import "github.com/marcuspat/devxplatform/internal/shared"

type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"omitempty,max=200"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Username *string `json:"username,omitempty" validate:"omitempty,min=3,max=50,alphanum"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=200"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type ListUsersRequest struct {
	Skip   int     `json:"skip" validate:"gte=0"`
	Limit  int     `json:"limit" validate:"gte=1,lte=100"`
	Search *string `json:"search,omitempty"`
}

type ListUsersResponse struct {
	Items      []User            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}
