package entity

// User is an account on the backend.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// IsAdmin reports whether the user may manage other accounts.
func (u User) IsAdmin() bool { return u.Role == "ADMIN" }

// Token is the credential returned by login and refresh.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
