package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lachlan2k/gatekeep/internal/gateway"
	"github.com/lachlan2k/gatekeep/internal/identity"
)

// Paths are the admin backend endpoints used by the session gate.
type Paths struct {
	Login       string
	Logout      string
	SetupTwoFA  string
	VerifyTwoFA string
}

func DefaultPaths() Paths {
	return Paths{
		Login:       "/admin/login",
		Logout:      "/admin/logout",
		SetupTwoFA:  "/admin-2fa/setup-2fa",
		VerifyTwoFA: "/admin-2fa/verify-2fa",
	}
}

type LoginRequest struct {
	Email       string `json:"email"`
	PasswordPin string `json:"passwordPin"`
	TwoFAToken  string `json:"twoFAToken,omitempty"`
}

// LoginResponse carries exactly one of: a session, a 2FA challenge, or an enrollment demand.
type LoginResponse struct {
	AccessToken      string                 `json:"accessToken"`
	Admin            *identity.Profile      `json:"admin"`
	FeatureAccess    identity.FeatureAccess `json:"featureAccess"`
	Requires2FA      bool                   `json:"requires2FA"`
	Requires2FASetup bool                   `json:"requires2FASetup"`
	Message          string                 `json:"message"`
}

// Enrollment is what the enrollment screen shows: a QR payload and the same secret for manual entry.
type Enrollment struct {
	QRCode         string `json:"qrCode"`
	ManualEntryKey string `json:"manualEntryKey"`
}

var ErrEnrollmentRejected = errors.New("two-factor code was not accepted")

type Client struct {
	gw    *gateway.Client
	paths Paths
}

func New(gw *gateway.Client, paths Paths) *Client {
	return &Client{gw: gw, paths: paths}
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.gw.Post(ctx, c.paths.Login, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SetupTwoFactor(ctx context.Context, email string) (*Enrollment, error) {
	var resp Enrollment
	err := c.gw.Post(ctx, c.paths.SetupTwoFA, map[string]string{"email": email}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.QRCode == "" && resp.ManualEntryKey == "" {
		return nil, fmt.Errorf("setup response contained no enrollment secret")
	}

	return &resp, nil
}

func (c *Client) VerifyTwoFactor(ctx context.Context, email, code string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	err := c.gw.Post(ctx, c.paths.VerifyTwoFA, map[string]string{
		"email": email,
		"token": code,
	}, &resp)
	if err != nil {
		return err
	}

	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", ErrEnrollmentRejected, resp.Message)
		}
		return ErrEnrollmentRejected
	}

	return nil
}

// Logout invalidates the current token server-side. A client with no logout path configured
// does nothing.
func (c *Client) Logout(ctx context.Context) error {
	if c.paths.Logout == "" {
		return nil
	}
	return c.gw.Post(ctx, c.paths.Logout, nil, nil)
}

// Fetch GETs a feature-module endpoint and returns the raw JSON for the screen to render.
func (c *Client) Fetch(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.gw.Get(ctx, path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
