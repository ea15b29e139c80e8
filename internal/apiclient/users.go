package apiclient

import (
	"context"
	"net/http"

	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// UserUpdate changes an account. Nil fields are left alone.
type UserUpdate struct {
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ListUsers is admin only.
func (c *Client) ListUsers(ctx context.Context) ([]entity.User, error) {
	var out []entity.User
	err := c.sendJSON(ctx, http.MethodGet, "users/", nil, &out, true)
	return out, err
}

func (c *Client) UpdateUser(ctx context.Context, id string, in UserUpdate) (entity.User, error) {
	if in.Role != nil && *in.Role != "USER" && *in.Role != "ADMIN" {
		return entity.User{}, common.NewAppError(common.CodeValidation, "role must be USER or ADMIN", common.ErrValidation)
	}
	var out entity.User
	err := c.sendJSON(ctx, http.MethodPut, resource("users", id), in, &out, true)
	return out, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, resource("users", id), nil, nil, true)
}

// ChangePassword changes the caller's own password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	v := common.NewValidator().
		Field("old_password", oldPassword, common.Required).
		Field("new_password", newPassword, common.Required, common.Password)
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return c.sendJSON(ctx, http.MethodPost, "users/change-password", body, nil, true)
}
