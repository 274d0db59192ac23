package types

type LoginRequest struct {
	EmailAddress string `json:"email_address" form:"email_address" validate:"required,email"`
	Password     string `json:"password" form:"password" validate:"required"`
}

// SessionTokens is the access/refresh pair issued by the registrar login.
type SessionTokens struct {
	Access  string
	Refresh string
}

func (t SessionTokens) IsZero() bool {
	return t.Access == "" && t.Refresh == ""
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       int    `json:"user_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	RoleName     string `json:"role_name"`
}

func (r *LoginResponse) Tokens() SessionTokens {
	return SessionTokens{Access: r.AccessToken, Refresh: r.RefreshToken}
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	Access      string `json:"access"`
}

func (r *RefreshResponse) Token() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Access
}
