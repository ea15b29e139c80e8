package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access token. The backend expects an
// OAuth2 password form, not JSON.
func (c *Client) Login(ctx context.Context, username, password string) (entity.Token, error) {
	if err := common.ValidateCredentials(username, "", password); err != nil {
		return entity.Token{}, err
	}
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	raw, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        "auth/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return entity.Token{}, err
	}
	var tok entity.Token
	if err := decode(raw, &tok); err != nil {
		return entity.Token{}, err
	}
	if tok.AccessToken == "" {
		return entity.Token{}, common.NewAppError(common.CodeRemote, "login response carried no access token", common.ErrUnauthorized)
	}
	return tok, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (entity.User, error) {
	if err := common.ValidateCredentials(in.Username, in.Email, in.Password); err != nil {
		return entity.User{}, err
	}
	if in.Email == "" {
		return entity.User{}, common.NewAppError(common.CodeValidation, "email is required", common.ErrValidation)
	}
	var out entity.User
	err := c.sendJSON(ctx, http.MethodPost, "auth/register", in, &out, false)
	return out, err
}

// Refresh trades the current token for a fresh one.
func (c *Client) Refresh(ctx context.Context) (entity.Token, error) {
	var tok entity.Token
	err := c.sendJSON(ctx, http.MethodPost, "auth/refresh", nil, &tok, true)
	return tok, err
}

// Me returns the account behind the current token.
func (c *Client) Me(ctx context.Context) (entity.User, error) {
	var out entity.User
	err := c.sendJSON(ctx, http.MethodGet, "users/me", nil, &out, true)
	return out, err
}
