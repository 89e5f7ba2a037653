package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/roach88/opsdesk/internal/model"
)

// Login exchanges credentials for tokens, the user and their institutions.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.Do(ctx, http.MethodPost, "user/login/", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchUserByID returns the user record.
func (c *Client) FetchUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("user/%d/", id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FetchInstitutionByID returns the institution record.
func (c *Client) FetchInstitutionByID(ctx context.Context, id int64) (*model.Institution, error) {
	var inst model.Institution
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("institution/%d/", id), nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// FetchAttachedInstitutions returns the institutions of the authenticated user.
func (c *Client) FetchAttachedInstitutions(ctx context.Context) ([]model.Institution, error) {
	var list []model.Institution
	if err := c.Do(ctx, http.MethodGet, "user/Institutions/", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ForgotPassword asks the API to email a reset link. frontendURL is optional.
func (c *Client) ForgotPassword(ctx context.Context, email, frontendURL string) error {
	body := map[string]string{"email": email}
	if frontendURL != "" {
		body["frontend_url"] = frontendURL
	}
	return c.Do(ctx, http.MethodPost, "user/forgot-password", body, nil)
}

// TokenVerification is the result of VerifyResetToken.
type TokenVerification struct {
	Valid  bool   `json:"valid"`
	Detail string `json:"detail,omitempty"`
}

// VerifyResetToken checks a password reset token.
func (c *Client) VerifyResetToken(ctx context.Context, token string) (TokenVerification, error) {
	var v TokenVerification
	err := c.Do(ctx, http.MethodPost, "user/verify-token", map[string]string{"token": token}, &v)
	return v, err
}

// ResetPassword sets a new password using a reset token and returns the
// API's confirmation message.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	var out errorBody
	body := map[string]string{"token": token, "new_password": newPassword}
	if err := c.Do(ctx, http.MethodPost, "user/reset-password", body, &out); err != nil {
		return "", err
	}
	return out.Detail, nil
}
