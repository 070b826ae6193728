package api

import (
	"context"
	"net/http"
	"time"

	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/pkg/jwt"
	"github.com/weiawesome/fin-dashboard/pkg/log"
)

// Credentials is the login and register request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// Session is the login response.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// Login authenticates, stores the token and clears the cache so no data of
// a previous account survives.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", Credentials{Username: username, Password: password}, &s); err != nil {
		return nil, err
	}

	c.setToken(s.Token)
	c.cache.Clear()

	c.logger.Info().Str(log.FieldUsername, username).Msg("logged in")
	return &s, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, creds Credentials) (*domain.User, error) {
	var u domain.User
	if err := c.call(ctx, http.MethodPost, "/api/auth/register", creds, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout drops the token and clears the cache.
func (c *Client) Logout() {
	c.setToken("")
	c.cache.Clear()
}

// Claims returns the unverified claims of the current token.
func (c *Client) Claims() (*jwt.Claims, error) {
	tok := c.Token()
	if tok == "" {
		return nil, ErrNotAuthenticated
	}
	return jwt.Inspect(tok)
}

func (c *Client) userID() (string, error) {
	claims, err := c.Claims()
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", jwt.ErrInvalidToken
	}
	return claims.UserID, nil
}
