package api

import (
	"context"
	"net/http"
)

// User is the server-side account representation returned alongside token
// pairs. The session store prefers token claims and falls back to these
// fields for anything the token omits.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	IsOnboarded bool   `json:"is_onboarded"`
}

// AuthResponse is the token-issuance payload shared by login, register,
// Google sign-in, and the set-role step.
type AuthResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

// RegisterRequest carries the registration form fields.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Role            string `json:"role,omitempty"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.Do(ctx, http.MethodPost, "/auth/login/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/register/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the refresh token server-side. Callers treat failure
// as non-fatal: logout is destructive locally regardless of the outcome.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.Do(ctx, http.MethodPost, "/auth/logout/", map[string]string{"refresh": refreshToken}, nil)
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.Do(ctx, http.MethodGet, "/auth/me/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	body := map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}
	return c.Do(ctx, http.MethodPost, "/auth/change-password/", body, nil)
}

// GoogleAuth exchanges a Google ID token credential for a platform token
// pair. Accounts created this way have no role until SetRole completes.
func (c *Client) GoogleAuth(ctx context.Context, credential string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/google/", map[string]string{"credential": credential}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetRole completes setup for identity-provider-created accounts and
// returns a fresh token pair carrying the chosen role.
func (c *Client) SetRole(ctx context.Context, role string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/set-role/", map[string]string{"role": role}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
